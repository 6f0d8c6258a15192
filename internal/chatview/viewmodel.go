// Package chatview assembles the per-viewer state of one conversation: a
// key-ordered ledger fed by the store's live stream, the projection built
// from it, and the scroll intent the renderer should apply next. All stream
// events are consumed by a single goroutine, so reducers never race.
package chatview

import (
	"context"
	"errors"
	"sync"

	"github.com/geniality/event-chat-backend/internal/composer"
	"github.com/geniality/event-chat-backend/internal/domain"
	"github.com/geniality/event-chat-backend/internal/ledger"
	"github.com/geniality/event-chat-backend/internal/scroll"
	"github.com/geniality/event-chat-backend/internal/view"
)

// ErrUnknownMessage is returned when a reply references a key the ledger
// does not hold.
var ErrUnknownMessage = errors.New("referenced message is not in the ledger")

// MessageStore is the store surface the view model consumes.
type MessageStore interface {
	FetchLatest(ctx context.Context, path string, limit int) ([]domain.Message, error)
	FetchOlderThan(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error)
	Append(ctx context.Context, path string, m domain.Message) (string, error)
	ToggleLike(ctx context.Context, path, key, voterID string) (domain.Message, error)
	Subscribe(path string) (<-chan domain.StreamEvent, func())
}

// Options configures one conversation view.
//
// Fields:
//   - Path:         conversation collection path
//   - Mode:         flat timeline or ranked questions
//   - CallerName:   resolved display name of the viewer (pseudonym applied)
//   - CallerID:     stable voter identity for like state
//   - Anonymous:    send under the pseudonym instead of CallerName
//   - Highlight:    optional substring to flag in the projection
//   - PageSize:     messages per page, <= 0 uses the store default
//   - NearBottomPx: stick-to-bottom proximity, <= 0 uses the default
type Options struct {
	Path         string
	Mode         view.Mode
	CallerName   string
	CallerID     string
	Anonymous    bool
	Highlight    string
	PageSize     int
	NearBottomPx int
}

// ViewModel owns the live state of one conversation for one viewer.
type ViewModel struct {
	store MessageStore
	opts  Options
	comp  *composer.Composer
	ctrl  *scroll.Controller

	mu       sync.Mutex
	state    ledger.State
	intent   scroll.Intent
	viewport scroll.Viewport
	anchor   scroll.PageAnchor
	paging   bool
	live     bool

	cancel func()
	done   chan struct{}
}

// Open subscribes to the conversation, loads the newest page, and starts the
// event loop. The subscription is taken before the page fetch so no commit
// can fall between the two; the ledger's idempotent insert absorbs the
// overlap.
func Open(ctx context.Context, store MessageStore, opts Options) (*ViewModel, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	vm := &ViewModel{
		store: store,
		opts:  opts,
		ctrl:  scroll.NewController(opts.NearBottomPx),
		done:  make(chan struct{}),
	}
	vm.comp = composer.New(store, opts.Path,
		composer.DisplayName(opts.CallerName, opts.Anonymous),
		opts.Mode == view.ModeQuestions)

	events, cancel := store.Subscribe(opts.Path)
	vm.cancel = cancel

	page, err := store.FetchLatest(ctx, opts.Path, opts.PageSize)
	if err != nil {
		cancel()
		return nil, err
	}
	vm.state = ledger.ApplyInitialPage(page)
	vm.intent = vm.ctrl.InitialLoad(opts.Mode == view.ModeQuestions)
	vm.live = true

	go vm.loop(events)
	return vm, nil
}

// DefaultPageSize mirrors the store's page size for callers that do not
// want to import the store package.
const DefaultPageSize = 40

// Close detaches from the live stream and waits for the loop to drain.
func (vm *ViewModel) Close() {
	vm.cancel()
	<-vm.done
}

// loop is the single consumer of the subscription channel.
func (vm *ViewModel) loop(events <-chan domain.StreamEvent) {
	defer close(vm.done)
	for ev := range events {
		vm.apply(ev)
	}
	vm.mu.Lock()
	vm.live = false
	vm.mu.Unlock()
}

// apply reduces one stream event into the ledger and records the resulting
// scroll intent. Events that do not change state leave the intent alone.
func (vm *ViewModel) apply(ev domain.StreamEvent) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	next, changed := ledger.Reduce(vm.state, ev)
	if !changed {
		return
	}
	vm.state = next
	if ev.Kind == domain.EventAdded {
		vm.intent = vm.ctrl.LiveAdded(ev.Message.Name, vm.callerDisplayName(), vm.viewport)
	}
}

func (vm *ViewModel) callerDisplayName() string {
	return composer.DisplayName(vm.opts.CallerName, vm.opts.Anonymous)
}

// Live reports whether the stream subscription is still attached. A false
// value means the consumer fell behind and must Resync.
func (vm *ViewModel) Live() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.live
}

// Resync replaces the dropped subscription with a fresh one and reloads the
// newest page, discarding whatever the stale ledger held beyond it.
func (vm *ViewModel) Resync(ctx context.Context) error {
	vm.cancel()
	<-vm.done

	events, cancel := vm.store.Subscribe(vm.opts.Path)
	page, err := vm.store.FetchLatest(ctx, vm.opts.Path, vm.opts.PageSize)
	if err != nil {
		cancel()
		return err
	}

	vm.mu.Lock()
	vm.state = ledger.ApplyInitialPage(page)
	vm.intent = vm.ctrl.InitialLoad(vm.opts.Mode == view.ModeQuestions)
	vm.live = true
	vm.paging = false
	vm.mu.Unlock()

	vm.cancel = cancel
	vm.done = make(chan struct{})
	go vm.loop(events)
	return nil
}

// Snapshot projects the current ledger and hands over the pending scroll
// intent. The intent is consumed: a second Snapshot with no state change in
// between returns IntentNone.
func (vm *ViewModel) Snapshot() (view.Projection, scroll.Intent) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	p := view.Project(vm.state.Messages(), view.Options{
		Mode:       vm.opts.Mode,
		CallerName: vm.callerDisplayName(),
		CallerID:   vm.opts.CallerID,
		Highlight:  vm.opts.Highlight,
	})
	intent := vm.intent
	vm.intent = scroll.Intent{}
	return p, intent
}

// ReportViewport records the renderer's scroll geometry. When a backward
// page is waiting for its layout, the new height settles the
// position-preserving intent.
func (vm *ViewModel) ReportViewport(vp scroll.Viewport) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.viewport = vp
	if vm.paging {
		vm.paging = false
		vm.intent = vm.ctrl.FinishOlderPage(vm.anchor, vp.ScrollHeight)
	}
}

// ShouldLoadOlder reports whether the renderer's current geometry calls for
// a backward page fetch.
func (vm *ViewModel) ShouldLoadOlder() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.ctrl.ShouldLoadOlder(vm.viewport, vm.state.Len())
}

// LoadOlder fetches and merges the page preceding the oldest held message.
// It returns how many messages were actually new. A second call while one
// is outstanding is a no-op, and a failed fetch leaves the ledger untouched
// and the guard released.
func (vm *ViewModel) LoadOlder(ctx context.Context) (int, error) {
	vm.mu.Lock()
	oldest := vm.state.OldestKey()
	if oldest == "" {
		vm.mu.Unlock()
		return 0, nil
	}
	anchor, started := vm.ctrl.BeginOlderPage(vm.viewport)
	if !started {
		vm.mu.Unlock()
		return 0, nil
	}
	vm.mu.Unlock()

	page, err := vm.store.FetchOlderThan(ctx, vm.opts.Path, oldest, vm.opts.PageSize)
	if err != nil {
		vm.mu.Lock()
		vm.ctrl.AbortOlderPage()
		vm.mu.Unlock()
		return 0, err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	next, added := vm.state.PrependOlderPage(page)
	vm.state = next
	if added == 0 {
		// Nothing new arrived; release the guard without repositioning.
		vm.ctrl.AbortOlderPage()
		return 0, nil
	}
	vm.anchor = anchor
	vm.paging = true
	return added, nil
}

// Send composes a plain message (or a question in the questions view).
func (vm *ViewModel) Send(ctx context.Context, text string) (string, error) {
	return vm.comp.SendMessage(ctx, text)
}

// SendQuestion composes a question regardless of the current view.
func (vm *ViewModel) SendQuestion(ctx context.Context, text string) (string, error) {
	return vm.comp.SendQuestion(ctx, text)
}

// SendReply composes a threaded reply under questionKey, optionally quoting
// the specific message identified by quotedKey. Both referents must already
// be in the ledger.
func (vm *ViewModel) SendReply(ctx context.Context, questionKey, text, quotedKey string) (string, error) {
	vm.mu.Lock()
	q, ok := vm.state.Get(questionKey)
	var quoted *domain.Message
	if quotedKey != "" {
		if qm, found := vm.state.Get(quotedKey); found {
			quoted = &qm
		}
	}
	vm.mu.Unlock()
	if !ok {
		return "", ErrUnknownMessage
	}
	return vm.comp.SendReply(ctx, q, text, quoted)
}

// ToggleLike flips the viewer's like on a question. The local ledger is
// never mutated directly; the authoritative result arrives on the stream.
func (vm *ViewModel) ToggleLike(ctx context.Context, key string) error {
	_, err := vm.store.ToggleLike(ctx, vm.opts.Path, key, vm.opts.CallerID)
	return err
}
