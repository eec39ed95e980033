package store

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ItsWendell/palot/internal/types"
)

// StreamBuffer overlays the EntityStore for text and reasoning parts while
// they stream. Writes land here at full event rate; subscribers are only
// poked at the notify interval, and the buffered values are merged into the
// EntityStore when the owning session goes idle.
type StreamBuffer struct {
	mu       sync.Mutex
	parts    map[string]*types.Part
	order    map[string][]string
	limiter  *rate.Limiter
	interval time.Duration
	notify   func()
	trailing *time.Timer
}

func NewStreamBuffer(notifyInterval time.Duration) *StreamBuffer {
	if notifyInterval <= 0 {
		notifyInterval = 50 * time.Millisecond
	}
	return &StreamBuffer{
		parts:    map[string]*types.Part{},
		order:    map[string][]string{},
		limiter:  rate.NewLimiter(rate.Every(notifyInterval), 1),
		interval: notifyInterval,
	}
}

// OnNotify registers the callback fired by the trailing tick when a throttled
// write is still buffered one interval later. Must be set before events flow.
func (b *StreamBuffer) OnNotify(fn func()) {
	b.notify = fn
}

// Put records the latest value for a streaming part. It reports whether the
// caller should notify subscribers now; at most one notification per notify
// interval is granted. A denied Put arms a trailing tick so a stream that
// pauses mid-generation still surfaces its last tokens.
func (b *StreamBuffer) Put(part types.Part) bool {
	if part.ID == "" || part.SessionID == "" {
		return false
	}
	b.mu.Lock()
	if _, ok := b.parts[part.ID]; !ok {
		b.order[part.SessionID] = append(b.order[part.SessionID], part.ID)
	}
	next := part
	b.parts[part.ID] = &next
	if b.limiter.Allow() {
		b.mu.Unlock()
		return true
	}
	if b.trailing == nil && b.notify != nil {
		b.trailing = time.AfterFunc(b.interval, b.fireTrailing)
	}
	b.mu.Unlock()
	return false
}

func (b *StreamBuffer) fireTrailing() {
	b.mu.Lock()
	b.trailing = nil
	pending := len(b.parts) > 0
	fn := b.notify
	b.mu.Unlock()
	if pending && fn != nil {
		fn()
	}
}

// Get returns the buffered value for a part, if any.
func (b *StreamBuffer) Get(partID string) (*types.Part, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	part, ok := b.parts[partID]
	return part, ok
}

// Len reports how many parts are currently buffered.
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.parts)
}

// DrainSession atomically removes and returns every buffered part for a
// session, in first-Put order. Called on the busy-to-idle transition so the
// EntityStore ends up holding the final streamed values regardless of
// whether any notify tick fired.
func (b *StreamBuffer) DrainSession(sessionID string) []types.Part {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.order[sessionID]
	delete(b.order, sessionID)
	out := make([]types.Part, 0, len(ids))
	for _, id := range ids {
		part, ok := b.parts[id]
		if !ok {
			continue
		}
		out = append(out, *part)
		delete(b.parts, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
