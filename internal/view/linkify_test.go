package view

import (
	"strings"
	"testing"
)

func joined(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

func TestLinkify(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		wantN int // number of link spans
		href  string
	}{
		{"plain text", "hola a todos", 0, ""},
		{"http url", "see https://example.com/agenda for details", 1, "https://example.com/agenda"},
		{"www url gets scheme", "visit www.example.com now", 1, "https://www.example.com"},
		{"email", "write to ana@example.com please", 1, "mailto:ana@example.com"},
		{"empty", "", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := Linkify(tc.in)
			if joined(spans) != tc.in {
				t.Fatalf("span concatenation %q != input %q", joined(spans), tc.in)
			}
			var links []Span
			for _, s := range spans {
				if s.Href != "" {
					links = append(links, s)
				}
			}
			if len(links) != tc.wantN {
				t.Fatalf("link spans = %d; want %d (%+v)", len(links), tc.wantN, spans)
			}
			if tc.wantN > 0 && links[0].Href != tc.href {
				t.Fatalf("href = %q; want %q", links[0].Href, tc.href)
			}
		})
	}
}

func TestLinkify_MultipleAndAdjacent(t *testing.T) {
	in := "a https://x.io b ana@y.co c"
	spans := Linkify(in)
	if joined(spans) != in {
		t.Fatalf("concatenation broken: %q", joined(spans))
	}
	var hrefs []string
	for _, s := range spans {
		if s.Href != "" {
			hrefs = append(hrefs, s.Href)
		}
	}
	if len(hrefs) != 2 || hrefs[0] != "https://x.io" || hrefs[1] != "mailto:ana@y.co" {
		t.Fatalf("hrefs = %v", hrefs)
	}
}
