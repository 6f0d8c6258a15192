// Package ledger maintains the in-memory authoritative local copy of a
// conversation's messages. It is a pure reducer over the store's mutation
// stream, intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Value-semantics State: every transition returns a new State, so a
//     sequence of events can be replayed deterministically in tests
//   - Unique by key, always exposed in ascending-key order, regardless of
//     the arrival order of events (first-load and live-subscribe races may
//     deliver out of order or twice)
//   - Unknown keys on change/remove are benign no-ops, which is the
//     expected situation under pagination windows that do not contain the
//     full history
//
// Keys assigned by the store are lexicographically sortable and strictly
// monotonic, so ascending key order is chronological order.
package ledger

import (
	"sort"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// State is an immutable snapshot of the ledger: the conversation's messages
// unique by key in ascending-key order. The zero value is an empty, usable
// state.
type State struct {
	msgs []domain.Message
}

// NewState returns an empty ledger state.
func NewState() State { return State{} }

// Len returns the number of messages held.
func (s State) Len() int { return len(s.msgs) }

// Messages returns the held messages in ascending-key order. The returned
// slice is a copy; mutating it does not affect the state.
func (s State) Messages() []domain.Message {
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Get returns the message stored under key, if present.
func (s State) Get(key string) (domain.Message, bool) {
	i, ok := s.find(key)
	if !ok {
		return domain.Message{}, false
	}
	return s.msgs[i], true
}

// Contains reports whether a message with the given key is held.
func (s State) Contains(key string) bool {
	_, ok := s.find(key)
	return ok
}

// OldestKey returns the smallest key held, or "" when empty. It is the
// pagination cursor for fetching the next older page.
func (s State) OldestKey() string {
	if len(s.msgs) == 0 {
		return ""
	}
	return s.msgs[0].Key
}

// NewestKey returns the largest key held, or "" when empty.
func (s State) NewestKey() string {
	if len(s.msgs) == 0 {
		return ""
	}
	return s.msgs[len(s.msgs)-1].Key
}

// find locates the index of key via binary search over the sorted slice.
func (s State) find(key string) (int, bool) {
	i := sort.Search(len(s.msgs), func(i int) bool { return s.msgs[i].Key >= key })
	if i < len(s.msgs) && s.msgs[i].Key == key {
		return i, true
	}
	return i, false
}

// ApplyInitialPage replaces the ledger contents with the first fetched
// page. Input order does not matter; the result is deduplicated by key and
// sorted ascending.
func ApplyInitialPage(msgs []domain.Message) State {
	return State{}.merge(msgs)
}

// ApplyAdded inserts the message if its key is absent. A key already held
// is left untouched (not overwritten): the initial page fetch and the live
// "added" subscription start concurrently and may both deliver the same
// message.
func (s State) ApplyAdded(m domain.Message) (State, bool) {
	i, ok := s.find(m.Key)
	if ok {
		return s, false
	}
	out := make([]domain.Message, 0, len(s.msgs)+1)
	out = append(out, s.msgs[:i]...)
	out = append(out, m)
	out = append(out, s.msgs[i:]...)
	return State{msgs: out}, true
}

// ApplyChanged replaces the entry at the message's key entirely. A change
// notification for a key outside the loaded window is a no-op.
func (s State) ApplyChanged(m domain.Message) (State, bool) {
	i, ok := s.find(m.Key)
	if !ok {
		return s, false
	}
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	out[i] = m
	return State{msgs: out}, true
}

// ApplyRemoved deletes the entry under key if present.
func (s State) ApplyRemoved(key string) (State, bool) {
	i, ok := s.find(key)
	if !ok {
		return s, false
	}
	out := make([]domain.Message, 0, len(s.msgs)-1)
	out = append(out, s.msgs[:i]...)
	out = append(out, s.msgs[i+1:]...)
	return State{msgs: out}, true
}

// PrependOlderPage merges an older page fetched by backward pagination.
// Keys already held win over incoming duplicates. It returns the new state
// and the number of messages actually added.
func (s State) PrependOlderPage(msgs []domain.Message) (State, int) {
	before := len(s.msgs)
	out := s.merge(msgs)
	return out, out.Len() - before
}

// merge folds msgs into the state, skipping keys already present.
func (s State) merge(msgs []domain.Message) State {
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	st := State{msgs: out}
	for _, m := range msgs {
		if m.Key == "" {
			continue
		}
		if next, ok := st.ApplyAdded(m); ok {
			st = next
		}
	}
	return st
}

// Reduce applies one tagged stream event to the state. It returns the new
// state and whether the event changed anything; duplicate adds and unknown
// change/remove keys reduce to the same state.
func Reduce(s State, ev domain.StreamEvent) (State, bool) {
	switch ev.Kind {
	case domain.EventAdded:
		return s.ApplyAdded(ev.Message)
	case domain.EventChanged:
		return s.ApplyChanged(ev.Message)
	case domain.EventRemoved:
		return s.ApplyRemoved(ev.Key)
	default:
		return s, false
	}
}
