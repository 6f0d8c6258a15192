// Package scroll decides how the viewport reacts to ledger mutations: keep
// the newest message in view, hold the reader's place while history is
// prepended, or do nothing. Intents are explicit return values consumed by
// the rendering layer right after it applies the corresponding state
// change; there is no side-channel flag to poll.
package scroll

// DefaultNearBottomPx is the proximity threshold under which the viewport
// counts as "at the bottom" and new arrivals keep it pinned there.
const DefaultNearBottomPx = 160

// Viewport is the renderer-reported scroll geometry at the moment an event
// arrives. A zero Viewport means the scroll container has not been laid out
// yet and is treated as at-bottom.
type Viewport struct {
	ScrollTop    int
	ScrollHeight int
	ClientHeight int
}

// DistanceFromBottom returns how many pixels of content lie below the fold.
func (v Viewport) DistanceFromBottom() int {
	return v.ScrollHeight - (v.ScrollTop + v.ClientHeight)
}

// NearBottom reports whether the viewport is within threshold pixels of the
// bottom. An unmeasured viewport counts as near.
func (v Viewport) NearBottom(threshold int) bool {
	if v.ScrollHeight == 0 {
		return true
	}
	return v.DistanceFromBottom() < threshold
}

// AtTop reports whether the viewport has been scrolled to the very top,
// which is the backward-pagination trigger.
func (v Viewport) AtTop() bool { return v.ScrollTop == 0 }

// IntentKind enumerates the externally observable scroll actions.
type IntentKind int

const (
	// IntentNone: leave the viewport alone (a remote message arrived below
	// the fold and must not yank the reader's position).
	IntentNone IntentKind = iota
	// IntentStickToBottom: scroll so the newest message is in view.
	IntentStickToBottom
	// IntentPreservePosition: set ScrollTop to Intent.ScrollTop so the
	// previously visible message stays visually anchored after a prepend.
	IntentPreservePosition
)

// Intent is the action the renderer should take after it has painted the
// new state. ScrollTop is meaningful only for IntentPreservePosition.
type Intent struct {
	Kind      IntentKind
	ScrollTop int
}

// PageAnchor captures the geometry just before an older page is prepended.
type PageAnchor struct {
	ScrollTop    int
	ScrollHeight int
}

// Controller is the scroll state machine for one conversation view. It is
// used from the single event-loop goroutine that owns the ledger; it holds
// no locks of its own.
type Controller struct {
	nearBottomPx int
	inFlight     bool
}

// NewController returns a Controller with the given proximity threshold;
// values <= 0 fall back to DefaultNearBottomPx.
func NewController(nearBottomPx int) *Controller {
	if nearBottomPx <= 0 {
		nearBottomPx = DefaultNearBottomPx
	}
	return &Controller{nearBottomPx: nearBottomPx}
}

// InitialLoad returns the intent for the first painted page: the flat view
// starts pinned to the newest message; the questions view keeps its ranked
// list at the top.
func (c *Controller) InitialLoad(questionsView bool) Intent {
	if questionsView {
		return Intent{Kind: IntentNone}
	}
	return Intent{Kind: IntentStickToBottom}
}

// LiveAdded returns the intent for a live "added" event. The view sticks to
// the bottom when the arrival is the caller's own message (regardless of
// position) or when the viewport was already near the bottom; otherwise the
// reader's position is left untouched.
func (c *Controller) LiveAdded(authorName, selfName string, vp Viewport) Intent {
	fromMe := selfName != "" && authorName == selfName
	if fromMe || vp.NearBottom(c.nearBottomPx) {
		return Intent{Kind: IntentStickToBottom}
	}
	return Intent{Kind: IntentNone}
}

// ShouldLoadOlder reports whether a backward page fetch should start:
// the viewport sits at the top, the ledger has content to anchor on, and no
// fetch is already in flight.
func (c *Controller) ShouldLoadOlder(vp Viewport, ledgerLen int) bool {
	return vp.AtTop() && ledgerLen > 0 && !c.inFlight
}

// BeginOlderPage marks a backward fetch in flight and captures the anchor
// geometry. It returns false when a fetch is already outstanding; the
// single in-flight guard is what prevents overlapping pagination, no
// request cancellation is needed.
func (c *Controller) BeginOlderPage(vp Viewport) (PageAnchor, bool) {
	if c.inFlight {
		return PageAnchor{}, false
	}
	c.inFlight = true
	return PageAnchor{ScrollTop: vp.ScrollTop, ScrollHeight: vp.ScrollHeight}, true
}

// FinishOlderPage clears the in-flight guard and returns the
// position-preserving intent: the new ScrollTop is the old one advanced by
// however much content height the prepend added. This path never sticks to
// the bottom.
func (c *Controller) FinishOlderPage(a PageAnchor, newScrollHeight int) Intent {
	c.inFlight = false
	return Intent{
		Kind:      IntentPreservePosition,
		ScrollTop: a.ScrollTop + (newScrollHeight - a.ScrollHeight),
	}
}

// AbortOlderPage clears the in-flight guard after a failed fetch so the
// user can re-trigger pagination.
func (c *Controller) AbortOlderPage() { c.inFlight = false }

// InFlight reports whether a backward fetch is outstanding.
func (c *Controller) InFlight() bool { return c.inFlight }
