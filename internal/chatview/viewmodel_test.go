package chatview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geniality/event-chat-backend/internal/composer"
	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/scroll"
	"github.com/geniality/event-chat-backend/internal/store"
	"github.com/geniality/event-chat-backend/internal/view"
)

const testPath = "events/e1/public/messages"

func msg(name, text string) domain.Message {
	return domain.Message{Name: name, Text: text}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openView(t *testing.T, s *store.Store, opts Options) *ViewModel {
	t.Helper()
	if opts.Path == "" {
		opts.Path = testPath
	}
	vm, err := Open(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(vm.Close)
	return vm
}

// waitForLen polls Snapshot until the projection holds want flat items.
func waitForLen(t *testing.T, vm *ViewModel, want int) view.Projection {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _ := vm.Snapshot()
		if len(p.Flat) == want {
			return p
		}
		if time.Now().After(deadline) {
			t.Fatalf("projection stuck at %d flat items; want %d", len(p.Flat), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpen_LoadsNewestPageAndSticksToBottom(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 50; i++ {
		if _, err := s.Append(context.Background(), testPath, msg("Ana", "m")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	vm := openView(t, s, Options{CallerName: "Ana", PageSize: 40})
	p, intent := vm.Snapshot()
	if len(p.Flat) != 40 {
		t.Fatalf("initial page = %d items; want 40", len(p.Flat))
	}
	if intent.Kind != scroll.IntentStickToBottom {
		t.Fatalf("initial intent = %v; want stick-to-bottom", intent.Kind)
	}

	// The intent is consumed by the first snapshot.
	if _, again := vm.Snapshot(); again.Kind != scroll.IntentNone {
		t.Fatalf("second snapshot intent = %v; want none", again.Kind)
	}
}

func TestLiveEventsReachTheProjection(t *testing.T) {
	s := newTestStore(t)
	vm := openView(t, s, Options{CallerName: "Ana"})

	if _, err := s.Append(context.Background(), testPath, msg("Luis", "hola")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	p := waitForLen(t, vm, 1)
	if p.Flat[0].Message.Text != "hola" || p.Flat[0].Mine {
		t.Fatalf("item wrong: %+v", p.Flat[0])
	}
}

func TestOwnSendArrivesViaStream(t *testing.T) {
	s := newTestStore(t)
	vm := openView(t, s, Options{CallerName: "Ana"})

	if _, err := vm.Send(context.Background(), "written by me"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p := waitForLen(t, vm, 1)
	if !p.Flat[0].Mine {
		t.Fatalf("own send not marked mine: %+v", p.Flat[0])
	}
	if _, intent := vm.Snapshot(); intent.Kind != scroll.IntentNone {
		// The stick intent was already consumed by waitForLen's snapshots;
		// only assert it does not linger.
		t.Fatalf("intent should be consumed, got %v", intent.Kind)
	}
}

func TestSend_EmptyTextLeavesLedgerUntouched(t *testing.T) {
	s := newTestStore(t)
	vm := openView(t, s, Options{CallerName: "Ana"})

	if _, err := vm.Send(context.Background(), "   "); !errors.Is(err, composer.ErrEmptyText) {
		t.Fatalf("err = %v; want ErrEmptyText", err)
	}
	time.Sleep(20 * time.Millisecond)
	p, _ := vm.Snapshot()
	if len(p.Flat) != 0 {
		t.Fatalf("rejected send still appeared: %+v", p.Flat)
	}
}

func TestLoadOlder_MergesAndPreservesPosition(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 60; i++ {
		if _, err := s.Append(context.Background(), testPath, msg("Ana", "m")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	vm := openView(t, s, Options{CallerName: "Ana", PageSize: 40})
	vm.Snapshot()

	top := scroll.Viewport{ScrollTop: 0, ScrollHeight: 2000, ClientHeight: 600}
	vm.ReportViewport(top)
	if !vm.ShouldLoadOlder() {
		t.Fatalf("top viewport with 40 messages should trigger pagination")
	}

	added, err := vm.LoadOlder(context.Background())
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if added != 20 {
		t.Fatalf("added = %d; want the 20 remaining messages", added)
	}
	p, _ := vm.Snapshot()
	if len(p.Flat) != 60 {
		t.Fatalf("ledger = %d; want 60", len(p.Flat))
	}

	// Renderer reports the post-prepend layout; position is preserved.
	vm.ReportViewport(scroll.Viewport{ScrollTop: 0, ScrollHeight: 2800, ClientHeight: 600})
	_, intent := vm.Snapshot()
	if intent.Kind != scroll.IntentPreservePosition {
		t.Fatalf("intent = %v; want preserve-position", intent.Kind)
	}
	if intent.ScrollTop != 800 {
		t.Fatalf("ScrollTop = %d; want 800 (height delta)", intent.ScrollTop)
	}

	// Fully paginated: a further load is a no-op.
	if n, err := vm.LoadOlder(context.Background()); err != nil || n != 0 {
		t.Fatalf("exhausted LoadOlder = %d, %v; want 0, nil", n, err)
	}
}

func TestLoadOlder_SingleInFlight(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 60; i++ {
		if _, err := s.Append(context.Background(), testPath, msg("Ana", "m")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	vm := openView(t, s, Options{CallerName: "Ana", PageSize: 40})
	vm.ReportViewport(scroll.Viewport{ScrollTop: 0, ScrollHeight: 2000, ClientHeight: 600})

	if _, err := vm.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	// The guard holds until the renderer reports the new layout.
	if n, err := vm.LoadOlder(context.Background()); err != nil || n != 0 {
		t.Fatalf("second in-flight LoadOlder = %d, %v; want no-op", n, err)
	}
	if vm.ShouldLoadOlder() {
		t.Fatalf("pagination must not re-trigger before layout settles")
	}
}

func TestToggleLike_ResultFlowsThroughStream(t *testing.T) {
	s := newTestStore(t)
	vm := openView(t, s, Options{
		Mode: view.ModeQuestions, CallerName: "Ana", CallerID: "voter-a",
	})

	if _, err := vm.SendQuestion(context.Background(), "coffee?"); err != nil {
		t.Fatalf("SendQuestion: %v", err)
	}
	key := waitForThreads(t, vm, 1).Threads[0].Question.Message.Key

	if err := vm.ToggleLike(context.Background(), key); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _ := vm.Snapshot()
		if len(p.Threads) == 1 && p.Threads[0].Question.LikeCount == 1 && p.Threads[0].Question.LikedByCaller {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("like never reflected: %+v", p.Threads)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendReply_QuoteAndThreading(t *testing.T) {
	s := newTestStore(t)
	vm := openView(t, s, Options{Mode: view.ModeQuestions, CallerName: "Luis"})

	if _, err := vm.SendQuestion(context.Background(), "why go?"); err != nil {
		t.Fatalf("SendQuestion: %v", err)
	}
	qKey := waitForThreads(t, vm, 1).Threads[0].Question.Message.Key

	if _, err := vm.SendReply(context.Background(), qKey, "because fast", ""); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _ := vm.Snapshot()
		if len(p.Threads) == 1 && len(p.Threads[0].Replies) == 1 {
			r := p.Threads[0].Replies[0]
			if r.Message.ThreadKey != qKey {
				t.Fatalf("reply threadKey = %q; want %q", r.Message.ThreadKey, qKey)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reply never arrived: %+v", p.Threads)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := vm.SendReply(context.Background(), "missing", "x", ""); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v; want ErrUnknownMessage", err)
	}
}

func waitForThreads(t *testing.T, vm *ViewModel, want int) view.Projection {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _ := vm.Snapshot()
		if len(p.Threads) == want {
			return p
		}
		if time.Now().After(deadline) {
			t.Fatalf("threads stuck at %d; want %d", len(p.Threads), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
