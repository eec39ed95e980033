package engine

import (
	"sync"
	"time"

	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/store"
	"github.com/ItsWendell/palot/internal/types"
)

type coalesceKind uint8

const (
	coalesceKindPart coalesceKind = iota
	coalesceKindStatus
)

// coalesceKey is the identity under which only the latest event in a batch
// survives: (messageID, partID) for part updates, sessionID for status.
type coalesceKey struct {
	kind coalesceKind
	a    string
	b    string
}

type queuedEvent struct {
	scope string
	props any
}

// Batcher buffers stream events for at most one flush interval, collapses
// redundant ones per coalescing key, and applies the batch to the
// EntityStore and StreamBuffer in a single write pass. Lifecycle events
// (session created/deleted, message finalized, permission and question
// traffic, errors) are never coalesced; every instance is applied in
// arrival order.
type Batcher struct {
	store    *store.EntityStore
	buffer   *store.StreamBuffer
	log      logging.Logger
	interval time.Duration
	bound    int

	mu        sync.Mutex
	queue     []queuedEvent
	coalesced map[coalesceKey]queuedEvent
	keyOrder  []coalesceKey
	timer     *time.Timer
	lastFlush time.Time
	disposed  bool
	flushes   uint64
	dropped   uint64

	onFlush func()
	onLive  func()
}

func NewBatcher(st *store.EntityStore, buf *store.StreamBuffer, interval time.Duration, bound int, log logging.Logger) *Batcher {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if bound <= 0 {
		bound = 4096
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Batcher{
		store:     st,
		buffer:    buf,
		log:       log,
		interval:  interval,
		bound:     bound,
		coalesced: map[coalesceKey]queuedEvent{},
		// Seeding lastFlush here makes the very first burst coalesce into
		// one deferred flush instead of flushing its first event alone.
		lastFlush: time.Now(),
	}
}

// OnFlush registers the callback fired after every applied flush. Must be
// set before events start flowing.
func (b *Batcher) OnFlush(fn func()) {
	b.onFlush = fn
}

// OnLive registers the callback fired when buffered streaming-part writes
// should be surfaced to subscribers (throttled by the StreamBuffer).
func (b *Batcher) OnLive(fn func()) {
	b.onLive = fn
}

// Flushes reports how many flushes have been applied.
func (b *Batcher) Flushes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes
}

// Dropped reports how many pending events were shed at the queue bound.
func (b *Batcher) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Enqueue accepts one decoded stream event. The first event after a quiet
// period flushes immediately; events arriving faster than the flush
// interval are deferred to the next interval boundary and coalesced.
func (b *Batcher) Enqueue(event types.Event) {
	props, err := event.Payload.Decode()
	if err != nil {
		b.log.Debug("dropping undecodable event",
			logging.F("type", event.Payload.Type),
			logging.F("err", err))
		return
	}
	if props == nil {
		return
	}

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	switch p := props.(type) {
	case *types.PartUpdatedProps:
		b.coalesce(coalesceKey{coalesceKindPart, p.Part.MessageID, p.Part.ID}, queuedEvent{event.Scope, props})
	case *types.SessionStatusProps:
		b.coalesce(coalesceKey{kind: coalesceKindStatus, a: p.SessionID}, queuedEvent{event.Scope, props})
	default:
		if len(b.queue) >= b.bound {
			b.queue = b.queue[1:]
			b.dropped++
			if b.dropped == 1 || b.dropped%1000 == 0 {
				b.log.Warn("pending event queue full, dropping oldest",
					logging.F("bound", b.bound),
					logging.F("dropped", b.dropped))
			}
		}
		b.queue = append(b.queue, queuedEvent{event.Scope, props})
	}

	now := time.Now()
	if b.timer != nil {
		b.mu.Unlock()
		return
	}
	if elapsed := now.Sub(b.lastFlush); elapsed >= b.interval {
		notifyFlush, notifyLive := b.flushLocked(now)
		b.mu.Unlock()
		b.notify(notifyFlush, notifyLive)
		return
	}
	wait := b.interval - now.Sub(b.lastFlush)
	b.timer = time.AfterFunc(wait, b.FlushNow)
	b.mu.Unlock()
}

// coalesce keeps the latest event per key while remembering the order keys
// first appeared, so multi-part messages keep insertion order through a
// single batch. Called with b.mu held.
func (b *Batcher) coalesce(key coalesceKey, q queuedEvent) {
	if _, ok := b.coalesced[key]; !ok {
		b.keyOrder = append(b.keyOrder, key)
	}
	b.coalesced[key] = q
}

// FlushNow forces an out-of-band flush.
func (b *Batcher) FlushNow() {
	b.mu.Lock()
	notifyFlush, notifyLive := b.flushLocked(time.Now())
	b.mu.Unlock()
	b.notify(notifyFlush, notifyLive)
}

// Dispose stops the flush timer and force-flushes whatever is buffered so
// no events are lost at teardown. Events enqueued afterwards are dropped.
func (b *Batcher) Dispose() {
	b.mu.Lock()
	b.disposed = true
	notifyFlush, notifyLive := b.flushLocked(time.Now())
	b.mu.Unlock()
	b.notify(notifyFlush, notifyLive)
}

func (b *Batcher) notify(flush, live bool) {
	if flush && b.onFlush != nil {
		b.onFlush()
	}
	if live && b.onLive != nil {
		b.onLive()
	}
}

// flushLocked swaps out the pending batch and applies it. Called with b.mu
// held; never suspends.
func (b *Batcher) flushLocked(now time.Time) (flushed, live bool) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.queue) == 0 && len(b.coalesced) == 0 {
		return false, false
	}
	queue := b.queue
	coalesced := b.coalesced
	keyOrder := b.keyOrder
	b.queue = nil
	b.coalesced = map[coalesceKey]queuedEvent{}
	b.keyOrder = nil
	b.lastFlush = now
	b.flushes++

	live = b.apply(queue, coalesced, keyOrder)
	return true, live
}

func (b *Batcher) apply(queue []queuedEvent, coalesced map[coalesceKey]queuedEvent, keyOrder []coalesceKey) (live bool) {
	var statuses []*types.SessionStatusProps
	b.store.Update(func(tx *store.Tx) {
		for _, q := range queue {
			b.applyOrdered(tx, q)
		}
		for _, key := range keyOrder {
			switch p := coalesced[key].props.(type) {
			case *types.PartUpdatedProps:
				if p.Part.Streaming() {
					// The store learns the part's identity right away so
					// enumeration and the LiveText overlay include it; the
					// text stays in the buffer until the idle drain.
					tx.EnsurePart(p.Part)
					if b.buffer.Put(p.Part) {
						live = true
					}
				} else {
					tx.BatchUpsertParts([]types.Part{p.Part})
				}
			case *types.SessionStatusProps:
				// Applied last so a same-batch idle transition drains parts
				// written above.
				statuses = append(statuses, p)
			}
		}
		for _, st := range statuses {
			tx.SetSessionStatus(st.SessionID, st.Status)
			if st.Status == types.SessionStatusIdle {
				b.drainInto(tx, st.SessionID)
			}
		}
	})
	return live
}

func (b *Batcher) applyOrdered(tx *store.Tx, q queuedEvent) {
	switch p := q.props.(type) {
	case *types.SessionInfoProps:
		info := p.Info
		if info.Directory == "" {
			info.Directory = q.scope
		}
		tx.UpsertSession(info)
	case *types.SessionDeletedProps:
		tx.RemoveSession(p.SessionID)
	case *types.SessionErrorProps:
		tx.SetSessionError(p.SessionID, p.Error)
	case *types.MessageUpdatedProps:
		tx.UpsertMessage(p.Info)
	case *types.PermissionUpdatedProps:
		tx.PutPermission(p.Permission)
	case *types.PermissionResolvedProps:
		tx.ResolvePermission(p.SessionID, p.PermissionID)
	case *types.QuestionAskedProps:
		tx.PutQuestion(p.Question)
	case *types.QuestionResolvedProps:
		tx.ResolveQuestion(p.SessionID, p.QuestionID)
	}
}

func (b *Batcher) drainInto(tx *store.Tx, sessionID string) {
	parts := b.buffer.DrainSession(sessionID)
	if len(parts) > 0 {
		tx.BatchUpsertParts(parts)
	}
}
