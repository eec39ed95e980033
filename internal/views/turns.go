package views

import (
	"strconv"
	"strings"

	"github.com/ItsWendell/palot/internal/store"
	"github.com/ItsWendell/palot/internal/types"
)

// Turn groups one user message with the contiguous run of assistant
// messages replying to it. Turns are recomputed from messages on every
// evaluation, never stored; an unchanged turn keeps its previous pointer so
// consumers can skip it by identity.
type Turn struct {
	User      *types.Message
	Assistant []*types.Message

	fingerprint string
}

func (t *Turn) key() string {
	if t.User != nil {
		return t.User.ID
	}
	if len(t.Assistant) > 0 {
		return t.Assistant[0].ID
	}
	return ""
}

type turnsMemo struct {
	version uint64
	value   []*Turn
}

// Turns returns the turn grouping for a session, reference-stable across
// recomputations when nothing observable changed.
func (g *Graph) Turns(sessionID string) []*Turn {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.store.Snapshot()
	version := snap.SessionVersion(sessionID)
	memo := g.turns[sessionID]
	if memo != nil && memo.version == version {
		return memo.value
	}

	next := groupTurns(snap, sessionID)
	if memo != nil {
		next = stabilizeTurns(memo.value, next)
	}
	g.turns[sessionID] = &turnsMemo{version: version, value: next}
	return next
}

func groupTurns(snap store.Snapshot, sessionID string) []*Turn {
	messages := snap.Messages(sessionID)
	var out []*Turn
	var current *Turn
	for _, msg := range messages {
		if msg.Role == types.MessageRoleUser {
			current = &Turn{User: msg}
			out = append(out, current)
			continue
		}
		if current == nil {
			// Assistant output with no preceding user message (mid-history
			// hydration); it still forms a renderable turn.
			current = &Turn{}
			out = append(out, current)
		}
		current.Assistant = append(current.Assistant, msg)
	}
	for _, turn := range out {
		turn.fingerprint = turnFingerprint(snap, turn)
	}
	return out
}

// turnFingerprint concatenates, for the user message and every assistant
// message, (id, completion time, part count, last part id). Content is
// deliberately not hashed: finalized messages never mutate content without
// one of these changing, and streaming text lives in the StreamBuffer, not
// here.
func turnFingerprint(snap store.Snapshot, turn *Turn) string {
	var b strings.Builder
	writeMessage := func(msg *types.Message) {
		if msg == nil {
			b.WriteString("-;")
			return
		}
		b.WriteString(msg.ID)
		b.WriteByte('|')
		if msg.CompletedAt != nil {
			b.WriteString(strconv.FormatInt(msg.CompletedAt.UnixNano(), 36))
		}
		parts := snap.Parts(msg.ID)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(parts)))
		b.WriteByte('|')
		if len(parts) > 0 {
			b.WriteString(parts[len(parts)-1].ID)
		}
		b.WriteByte(';')
	}
	writeMessage(turn.User)
	for _, msg := range turn.Assistant {
		writeMessage(msg)
	}
	return b.String()
}

func stabilizeTurns(prev, next []*Turn) []*Turn {
	if len(prev) == 0 {
		return next
	}
	byKey := make(map[string]*Turn, len(prev))
	for _, turn := range prev {
		byKey[turn.key()] = turn
	}
	same := len(prev) == len(next)
	for i, turn := range next {
		old, ok := byKey[turn.key()]
		if ok && old.fingerprint == turn.fingerprint {
			next[i] = old
		}
		if same && (i >= len(prev) || next[i] != prev[i]) {
			same = false
		}
	}
	if same {
		return prev
	}
	return next
}
