// Package domain defines the core data model of the event chat: the wire
// shape of a chat message as it is read from and written to the message
// store, the tagged mutation events delivered by store subscriptions, and
// the persistence models used by the relational layer (idempotency records
// and the WhatsApp outbound queue).
package domain

// MessageType discriminates the two message shapes carried by a
// conversation. Older records may lack the field entirely; those are
// treated as plain messages (see EffectiveType).
type MessageType string

const (
	// TypeMessage is a plain chat message shown in the live timeline.
	TypeMessage MessageType = "message"

	// TypeQuestion is an audience question: it renders as a card, carries
	// likes, and anchors a reply thread.
	TypeQuestion MessageType = "question"
)

// ReplyRef is a denormalized quote of the message being replied to. It is
// embedded in the reply itself so the quote renders even when the quoted
// message has scrolled out of the loaded page window.
type ReplyRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Message is the atomic unit of a conversation.
//
// Fields:
//   - Key: opaque identifier assigned by the store on append. Keys are
//     lexicographically sortable and strictly monotonic, so ascending key
//     order is chronological order. Key is identity; it never changes.
//   - Text: user-entered content, stored verbatim. Link detection is a
//     presentation-time transform and never rewrites this field.
//   - Name: author display name at time of send (possibly the anonymous
//     pseudonym). Immutable after send.
//   - TS: server-assigned timestamp in Unix milliseconds. Nil while the
//     append is still in flight; used for display and sorting fallbacks
//     only, never for identity.
//   - Type: message or question; empty means message (records written
//     before the field existed).
//   - Likes: voter-id → true membership set; only present on questions.
//   - LikesCount: cached cardinality of Likes. Authoritative when present;
//     older records without it fall back to counting Likes.
//   - ReplyTo: optional inline quote (see ReplyRef).
//   - ThreadKey: when set, this message belongs to the reply thread of the
//     question whose key it references and is hidden from the flat view.
//   - Highlighted: marker set on questions at composition time.
type Message struct {
	Key         string          `json:"key,omitempty"`
	Text        string          `json:"text"`
	Name        string          `json:"name"`
	TS          *int64          `json:"ts,omitempty"`
	Type        MessageType     `json:"type,omitempty"`
	Likes       map[string]bool `json:"likes,omitempty"`
	LikesCount  *int            `json:"likesCount,omitempty"`
	ReplyTo     *ReplyRef       `json:"replyTo,omitempty"`
	ThreadKey   string          `json:"threadKey,omitempty"`
	Highlighted bool            `json:"highlighted,omitempty"`
}

// EffectiveType normalizes the Type field: records lacking it are plain
// messages.
func (m Message) EffectiveType() MessageType {
	if m.Type == "" {
		return TypeMessage
	}
	return m.Type
}

// IsQuestion reports whether the message is a question after normalization.
func (m Message) IsQuestion() bool { return m.EffectiveType() == TypeQuestion }

// LikeCount returns the number of likes. The cached LikesCount is
// authoritative when present; otherwise the Likes set is counted.
func (m Message) LikeCount() int {
	if m.LikesCount != nil {
		return *m.LikesCount
	}
	return len(m.Likes)
}

// LikedBy reports whether voterID is currently in the like set.
func (m Message) LikedBy(voterID string) bool {
	return voterID != "" && m.Likes[voterID]
}

// EventKind tags a store mutation event.
type EventKind int

const (
	// EventAdded carries a newly committed message.
	EventAdded EventKind = iota
	// EventChanged carries the full replacement value of an existing message.
	EventChanged
	// EventRemoved carries only the key of a deleted message.
	EventRemoved
)

// String returns the lowercase tag name, used in logs and the wire stream.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// StreamEvent is one entry of the ordered mutation stream a subscription
// delivers. Events arrive in store commit order; the ledger applies them in
// that order. For EventRemoved only Key is set.
type StreamEvent struct {
	Kind    EventKind `json:"kind"`
	Key     string    `json:"key"`
	Message Message   `json:"message,omitempty"`
}

// MarshalKind exposes the event tag in wire form; used when events are
// relayed over the websocket stream.
type WireEvent struct {
	Kind    string   `json:"kind"`
	Key     string   `json:"key"`
	Message *Message `json:"message,omitempty"`
}

// Wire converts a StreamEvent to its JSON-friendly form.
func (e StreamEvent) Wire() WireEvent {
	w := WireEvent{Kind: e.Kind.String(), Key: e.Key}
	if e.Kind != EventRemoved {
		msg := e.Message
		w.Message = &msg
	}
	return w
}
