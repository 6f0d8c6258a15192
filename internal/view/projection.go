// Package view derives presentation models from the raw ledger contents.
// Projections are pure functions recomputed from the full message list on
// every change; page sizes are tens of messages, so there is no incremental
// state to keep consistent.
//
// Two shapes are produced:
//
//   - Flat mode: the live chat timeline. Thread replies are hidden, and
//     every remaining message is annotated with the presentation facts the
//     renderer needs (mine vs. other, live question card, like state).
//   - Question-list mode: the "top questions" view. Questions are ranked by
//     like count (descending) with ties broken by ascending key, so early
//     popular questions win and equal popularity orders predictably.
package view

import (
	"sort"
	"strings"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// Mode selects the projection shape.
type Mode int

const (
	// ModeFlat is the default live chat timeline.
	ModeFlat Mode = iota
	// ModeQuestions is the ranked question-thread list.
	ModeQuestions
)

// ModeFromParam maps the page's view selector to a Mode. Only the value
// "questions" (case-insensitive) selects the question list; anything else,
// including absence, is the flat view.
func ModeFromParam(view string) Mode {
	if strings.EqualFold(strings.TrimSpace(view), "questions") {
		return ModeQuestions
	}
	return ModeFlat
}

// Options parameterizes a projection with the caller's identity and the
// page's highlight term.
type Options struct {
	Mode Mode

	// CallerName is the display name used to mark messages as "mine".
	CallerName string
	// CallerID is the voter identity used to resolve liked-by-caller.
	CallerID string
	// Highlight marks items whose text contains this substring.
	Highlight string
}

// Item is one projected message with its derived presentation facts.
type Item struct {
	Message domain.Message

	// Mine is true when the caller authored the message.
	Mine bool
	// LiveCard is true for a question rendered inline in the flat view
	// (questions get card styling outside the dedicated questions view).
	LiveCard bool
	// LikeCount and LikedByCaller resolve the like state for questions;
	// both are zero-valued for plain messages.
	LikeCount     int
	LikedByCaller bool
	// Highlighted is true when the text contains the highlight term.
	Highlighted bool
	// Spans is the text split into plain and hyperlink segments.
	Spans []Span
}

// Thread is a ranked question with its replies in ascending-key order.
type Thread struct {
	Question Item
	Replies  []Item
}

// Projection is the output of Project: exactly one of Flat or Threads is
// populated, according to Mode.
type Projection struct {
	Mode    Mode
	Flat    []Item
	Threads []Thread
}

// Project recomputes the presentation model from the full ledger contents.
// Messages lacking a type are treated as plain messages.
func Project(msgs []domain.Message, o Options) Projection {
	if o.Mode == ModeQuestions {
		return Projection{Mode: ModeQuestions, Threads: projectThreads(msgs, o)}
	}
	return Projection{Mode: ModeFlat, Flat: projectFlat(msgs, o)}
}

// projectFlat hides thread replies and annotates the remaining timeline.
func projectFlat(msgs []domain.Message, o Options) []Item {
	out := make([]Item, 0, len(msgs))
	for _, m := range msgs {
		if m.ThreadKey != "" {
			continue
		}
		it := annotate(m, o)
		it.LiveCard = m.IsQuestion()
		out = append(out, it)
	}
	return out
}

// projectThreads ranks questions and groups their replies.
func projectThreads(msgs []domain.Message, o Options) []Thread {
	questions := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsQuestion() {
			questions = append(questions, m)
		}
	}
	// Likes descending; ascending key (oldest question first) on ties.
	sort.SliceStable(questions, func(i, j int) bool {
		li, lj := questions[i].LikeCount(), questions[j].LikeCount()
		if li != lj {
			return li > lj
		}
		return questions[i].Key < questions[j].Key
	})

	threads := make([]Thread, 0, len(questions))
	for _, q := range questions {
		th := Thread{Question: annotate(q, o)}
		for _, m := range msgs {
			if m.Key == q.Key || m.ThreadKey != q.Key || m.IsQuestion() {
				continue
			}
			th.Replies = append(th.Replies, annotate(m, o))
		}
		// Ledger order is already ascending by key; keep replies that way.
		threads = append(threads, th)
	}
	return threads
}

// annotate derives the per-message presentation facts.
func annotate(m domain.Message, o Options) Item {
	it := Item{
		Message: m,
		Mine:    o.CallerName != "" && m.Name == o.CallerName,
		Spans:   Linkify(m.Text),
	}
	if m.IsQuestion() {
		it.LikeCount = m.LikeCount()
		it.LikedByCaller = m.LikedBy(o.CallerID)
	}
	if o.Highlight != "" && strings.Contains(m.Text, o.Highlight) {
		it.Highlighted = true
	}
	return it
}
