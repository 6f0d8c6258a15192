package view

import (
	"regexp"
	"strings"
)

// linkRE recognizes bare http(s)/www URLs and email addresses embedded in
// message text. Detection happens at presentation time only; the stored
// text is never rewritten.
var linkRE = regexp.MustCompile(`((?:https?://|www\.)[^\s<>"'()]+)|([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

// Span is a segment of message text. Href is empty for plain text; for a
// link segment it carries the resolved target (mailto: for emails, https://
// prefixed for scheme-less www forms).
type Span struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// Linkify splits text into plain and hyperlink spans. The concatenation of
// all span texts always equals the input.
func Linkify(text string) []Span {
	if text == "" {
		return nil
	}
	locs := linkRE.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []Span{{Text: text}}
	}

	spans := make([]Span, 0, 2*len(locs)+1)
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if last < start {
			spans = append(spans, Span{Text: text[last:start]})
		}
		match := text[start:end]
		spans = append(spans, Span{Text: match, Href: hrefFor(match, loc[4] >= 0)})
		last = end
	}
	if last < len(text) {
		spans = append(spans, Span{Text: text[last:]})
	}
	return spans
}

// hrefFor resolves the link target for a matched segment.
func hrefFor(match string, isEmail bool) string {
	if isEmail {
		return "mailto:" + match
	}
	if strings.HasPrefix(strings.ToLower(match), "www.") {
		return "https://" + match
	}
	return match
}
