package views

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ItsWendell/palot/internal/types"
)

// SessionSummary is the per-session row for list surfaces. Volatile
// per-token metrics are deliberately absent; they live in SessionMetrics so
// a ticking counter never invalidates the session list.
type SessionSummary struct {
	ID        string
	ParentID  string
	Title     string
	Directory string
	Status    types.SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	LastError string
	// Activity is a human label derived from UpdatedAt ("3 minutes ago").
	Activity string
	// Hydrating marks a session known only from its child entities; list
	// surfaces render these as stubs until real session info arrives.
	Hydrating bool

	Permissions []*types.Permission
	Questions   []*types.Question
}

type summaryMemo struct {
	version uint64
	value   *SessionSummary
}

// SessionSummary returns the stabilized summary for one session, or nil if
// the session is unknown.
func (g *Graph) SessionSummary(sessionID string) *SessionSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionSummaryLocked(sessionID)
}

func (g *Graph) sessionSummaryLocked(sessionID string) *SessionSummary {
	snap := g.store.Snapshot()
	version := snap.SessionVersion(sessionID)
	memo := g.summaries[sessionID]
	if memo != nil && memo.version == version {
		return memo.value
	}

	sess, ok := snap.Session(sessionID)
	if !ok {
		delete(g.summaries, sessionID)
		return nil
	}
	next := &SessionSummary{
		ID:          sess.ID,
		ParentID:    sess.ParentID,
		Title:       sess.Title,
		Directory:   sess.Directory,
		Status:      sess.Status,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
		LastError:   sess.LastError,
		Activity:    activityLabel(sess.UpdatedAt),
		Hydrating:   snap.SessionPlaceholder(sessionID),
		Permissions: snap.Permissions(sessionID),
		Questions:   snap.Questions(sessionID),
	}
	if memo != nil && summariesEqual(memo.value, next) {
		memo.version = version
		return memo.value
	}
	g.summaries[sessionID] = &summaryMemo{version: version, value: next}
	return next
}

func activityLabel(updatedAt time.Time) string {
	if updatedAt.IsZero() {
		return ""
	}
	return humanize.Time(updatedAt)
}

// summariesEqual is the structural-equality policy for summaries: scalar
// fields, plus request lists compared by length and first-element identity.
// Activity is a pure function of UpdatedAt and is not compared separately.
func summariesEqual(a, b *SessionSummary) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.ParentID != b.ParentID || a.Title != b.Title ||
		a.Directory != b.Directory || a.Status != b.Status ||
		a.LastError != b.LastError || a.Hydrating != b.Hydrating {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if !requestListsEqual(a.Permissions, b.Permissions) {
		return false
	}
	return questionListsEqual(a.Questions, b.Questions)
}

func requestListsEqual(a, b []*types.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || a[0] == b[0]
}

func questionListsEqual(a, b []*types.Question) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || a[0] == b[0]
}

// Agents is the cross-session list view: every known session's summary,
// ordered by most recent activity. Returns the previous slice when every
// element is identical, which composes with per-summary stabilization.
func (g *Graph) Agents() []*SessionSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.store.Snapshot()
	if g.agents.valid && g.agents.version == snap.Version() {
		return g.agents.value
	}

	sessions := snap.Sessions()
	next := make([]*SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if summary := g.sessionSummaryLocked(sess.ID); summary != nil {
			next = append(next, summary)
		}
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].UpdatedAt.After(next[j].UpdatedAt)
	})
	next = stabilizeList(g.agents.value, next)
	g.agents = listMemo[*SessionSummary]{version: snap.Version(), valid: true, value: next}
	return next
}

func stabilizeList[T comparable](prev, next []T) []T {
	if len(prev) != len(next) {
		return next
	}
	for i := range next {
		if prev[i] != next[i] {
			return next
		}
	}
	return prev
}
