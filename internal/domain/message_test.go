package domain

import (
	"encoding/json"
	"testing"
)

func TestEffectiveType_DefaultsToMessage(t *testing.T) {
	cases := []struct {
		name string
		in   Message
		want MessageType
	}{
		{"absent type", Message{Text: "hi"}, TypeMessage},
		{"explicit message", Message{Type: TypeMessage}, TypeMessage},
		{"question", Message{Type: TypeQuestion}, TypeQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.EffectiveType(); got != tc.want {
				t.Fatalf("EffectiveType() = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestLikeCount_CachedAuthoritative(t *testing.T) {
	three := 3
	m := Message{
		Type:       TypeQuestion,
		Likes:      map[string]bool{"a": true},
		LikesCount: &three,
	}
	if got := m.LikeCount(); got != 3 {
		t.Fatalf("LikeCount() = %d; want cached 3", got)
	}
}

func TestLikeCount_FallsBackToCountingLikes(t *testing.T) {
	// Records created before the cache field existed have no likesCount.
	m := Message{Type: TypeQuestion, Likes: map[string]bool{"a": true, "b": true}}
	if got := m.LikeCount(); got != 2 {
		t.Fatalf("LikeCount() = %d; want 2 from likes set", got)
	}
	if (Message{}).LikeCount() != 0 {
		t.Fatalf("empty message should have zero likes")
	}
}

func TestLikedBy(t *testing.T) {
	m := Message{Likes: map[string]bool{"u1": true}}
	if !m.LikedBy("u1") {
		t.Fatalf("expected u1 to be a liker")
	}
	if m.LikedBy("u2") || m.LikedBy("") {
		t.Fatalf("unexpected liker membership")
	}
}

func TestMessage_JSONRoundTrip_OmitsUnsetFields(t *testing.T) {
	b, err := json.Marshal(Message{Text: "hola", Name: "Ana"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, forbidden := range []string{"likes", "likesCount", "replyTo", "threadKey", "ts", "type"} {
		if contains := jsonHasField(s, forbidden); contains {
			t.Fatalf("marshal of bare message should omit %q, got %s", forbidden, s)
		}
	}

	// A stored record without "type" must decode to a plain message.
	var m Message
	if err := json.Unmarshal([]byte(`{"text":"old","name":"Luis","ts":1700000000000}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.EffectiveType() != TypeMessage {
		t.Fatalf("legacy record should project as a plain message")
	}
	if m.TS == nil || *m.TS != 1700000000000 {
		t.Fatalf("ts not preserved: %+v", m.TS)
	}
}

func jsonHasField(s, field string) bool {
	return json.Valid([]byte(s)) && (len(s) > 0 && (stringContains(s, `"`+field+`":`)))
}

func stringContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestConversationPath(t *testing.T) {
	cases := []struct {
		name                    string
		eventID, chatID, userID string
		want                    string
	}{
		{"private with identity", "e1", "c9", "u7", "/events/e1/private/c9/messages"},
		{"public without identity", "e1", "c9", "", "/events/e1/public/messages"},
		{"public without chat id", "e1", "", "u7", "/events/e1/public/messages"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ConversationPath(tc.eventID, tc.chatID, tc.userID); got != tc.want {
				t.Fatalf("ConversationPath() = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestStreamEvent_Wire(t *testing.T) {
	m := Message{Key: "k1", Text: "hi", Name: "Ana"}
	w := StreamEvent{Kind: EventAdded, Key: "k1", Message: m}.Wire()
	if w.Kind != "added" || w.Key != "k1" || w.Message == nil || w.Message.Text != "hi" {
		t.Fatalf("unexpected wire event: %+v", w)
	}

	wr := StreamEvent{Kind: EventRemoved, Key: "k2"}.Wire()
	if wr.Kind != "removed" || wr.Key != "k2" || wr.Message != nil {
		t.Fatalf("removed event must carry only the key: %+v", wr)
	}
}
