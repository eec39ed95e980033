package views

import (
	"sync"

	"github.com/ItsWendell/palot/internal/store"
	"github.com/ItsWendell/palot/internal/types"
)

// Graph is the set of memoized, dependency-tracked views over the
// EntityStore. Each view recomputes only when the versions it depends on
// change, and returns its previous result unchanged when the recomputed
// output is structurally equal — so subscribers can compare by identity and
// skip work.
type Graph struct {
	mu     sync.Mutex
	store  *store.EntityStore
	buffer *store.StreamBuffer

	turns     map[string]*turnsMemo
	summaries map[string]*summaryMemo
	metrics   map[string]*metricsMemo
	agents    listMemo[*SessionSummary]
	projects  listMemo[*Project]
	pending   pendingMemo

	subMu   sync.Mutex
	subs    map[string]map[int]func()
	nextSub int
}

func NewGraph(st *store.EntityStore, buf *store.StreamBuffer) *Graph {
	return &Graph{
		store:     st,
		buffer:    buf,
		turns:     map[string]*turnsMemo{},
		summaries: map[string]*summaryMemo{},
		metrics:   map[string]*metricsMemo{},
		subs:      map[string]map[int]func(){},
	}
}

type listMemo[T comparable] struct {
	version uint64
	valid   bool
	value   []T
}

// Subscribe registers a callback fired after every flush and on streaming
// notify ticks. The returned function unsubscribes.
func (g *Graph) Subscribe(view string, fn func()) func() {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	g.nextSub++
	id := g.nextSub
	byID, ok := g.subs[view]
	if !ok {
		byID = map[int]func(){}
		g.subs[view] = byID
	}
	byID[id] = fn
	return func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		delete(g.subs[view], id)
	}
}

// Broadcast pokes every subscriber. Subscribers pull the views they care
// about; stabilization makes redundant pulls cheap.
func (g *Graph) Broadcast() {
	g.subMu.Lock()
	fns := make([]func(), 0, len(g.subs))
	for _, byID := range g.subs {
		for _, fn := range byID {
			fns = append(fns, fn)
		}
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// LivePart returns the freshest value for a part: the StreamBuffer overlay
// while it is streaming, the store otherwise.
func (g *Graph) LivePart(partID string) (*types.Part, bool) {
	if part, ok := g.buffer.Get(partID); ok {
		return part, true
	}
	return g.store.Snapshot().Part(partID)
}

// LiveText concatenates the text parts of a message with the streaming
// overlay applied. Read on the coarse notify cadence by text consumers.
func (g *Graph) LiveText(messageID string) string {
	snap := g.store.Snapshot()
	var out []byte
	for _, part := range snap.Parts(messageID) {
		if part.Type != types.PartTypeText {
			continue
		}
		if live, ok := g.buffer.Get(part.ID); ok {
			out = append(out, live.Text...)
			continue
		}
		out = append(out, part.Text...)
	}
	return string(out)
}

type pendingMemo struct {
	version uint64
	valid   bool
	value   int
}

// PendingRequests counts permissions and questions currently awaiting user
// input across all sessions.
func (g *Graph) PendingRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.store.Snapshot()
	if g.pending.valid && g.pending.version == snap.Version() {
		return g.pending.value
	}
	count := 0
	for _, sess := range snap.Sessions() {
		count += len(snap.Permissions(sess.ID))
		count += len(snap.Questions(sess.ID))
	}
	g.pending = pendingMemo{version: snap.Version(), valid: true, value: count}
	return count
}
