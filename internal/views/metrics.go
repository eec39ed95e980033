package views

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ItsWendell/palot/internal/types"
)

// SessionMetrics carries the volatile per-session counters, independently
// subscribable from the summary so token-by-token updates stay isolated.
type SessionMetrics struct {
	SessionID    string
	Cost         float64
	InputTokens  int64
	OutputTokens int64
	Elapsed      time.Duration

	CostLabel   string
	TokensLabel string
}

type metricsMemo struct {
	version uint64
	value   *SessionMetrics
}

func (g *Graph) SessionMetrics(sessionID string) *SessionMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.store.Snapshot()
	version := snap.SessionVersion(sessionID)
	memo := g.metrics[sessionID]
	if memo != nil && memo.version == version {
		return memo.value
	}

	sess, ok := snap.Session(sessionID)
	if !ok {
		delete(g.metrics, sessionID)
		return nil
	}
	next := &SessionMetrics{
		SessionID:    sess.ID,
		Cost:         sess.Cost,
		InputTokens:  sess.InputTokens,
		OutputTokens: sess.OutputTokens,
		Elapsed:      elapsed(sess),
		CostLabel:    "$" + humanize.CommafWithDigits(sess.Cost, 2),
		TokensLabel:  humanize.Comma(sess.InputTokens+sess.OutputTokens) + " tokens",
	}
	if memo != nil && metricsEqual(memo.value, next) {
		memo.version = version
		return memo.value
	}
	g.metrics[sessionID] = &metricsMemo{version: version, value: next}
	return next
}

func elapsed(sess *types.Session) time.Duration {
	if sess.CreatedAt.IsZero() || sess.UpdatedAt.Before(sess.CreatedAt) {
		return 0
	}
	return sess.UpdatedAt.Sub(sess.CreatedAt)
}

func metricsEqual(a, b *SessionMetrics) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SessionID == b.SessionID &&
		a.Cost == b.Cost &&
		a.InputTokens == b.InputTokens &&
		a.OutputTokens == b.OutputTokens &&
		a.Elapsed == b.Elapsed
}

// Project aggregates the sessions sharing one directory.
type Project struct {
	Directory    string
	Sessions     int
	Busy         int
	LastActivity time.Time
}

func (g *Graph) Projects() []*Project {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.store.Snapshot()
	if g.projects.valid && g.projects.version == snap.Version() {
		return g.projects.value
	}

	byDir := map[string]*Project{}
	for _, sess := range snap.Sessions() {
		project, ok := byDir[sess.Directory]
		if !ok {
			project = &Project{Directory: sess.Directory}
			byDir[sess.Directory] = project
		}
		project.Sessions++
		if sess.Busy() {
			project.Busy++
		}
		if sess.UpdatedAt.After(project.LastActivity) {
			project.LastActivity = sess.UpdatedAt
		}
	}
	next := make([]*Project, 0, len(byDir))
	for _, project := range byDir {
		next = append(next, project)
	}
	sort.Slice(next, func(i, j int) bool {
		return next[i].Directory < next[j].Directory
	})
	next = stabilizeProjects(g.projects.value, next)
	g.projects = listMemo[*Project]{version: snap.Version(), valid: true, value: next}
	return next
}

func stabilizeProjects(prev, next []*Project) []*Project {
	same := len(prev) == len(next)
	for i := range next {
		if i < len(prev) && *prev[i] == *next[i] {
			next[i] = prev[i]
		} else {
			same = false
		}
	}
	if same {
		return prev
	}
	return next
}
