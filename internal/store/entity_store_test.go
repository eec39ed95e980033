package store

import (
	"testing"
	"time"

	"github.com/ItsWendell/palot/internal/types"
)

func TestOrphanPartCreatesPlaceholderParents(t *testing.T) {
	st := NewEntityStore()
	st.BatchUpsertParts([]types.Part{{
		ID:        "p1",
		MessageID: "m1",
		SessionID: "s1",
		Type:      types.PartTypeText,
		Text:      "hello",
	}})

	snap := st.Snapshot()
	if _, ok := snap.Session("s1"); !ok {
		t.Fatalf("expected placeholder session")
	}
	messages := snap.Messages("s1")
	if len(messages) != 1 || messages[0].ID != "m1" {
		t.Fatalf("expected placeholder message, got %+v", messages)
	}
	parts := snap.Parts("m1")
	if len(parts) != 1 || parts[0].Text != "hello" {
		t.Fatalf("expected part to survive, got %+v", parts)
	}

	// The real message arrives later; it must fill in fields without
	// duplicating or losing the part.
	created := time.Now()
	st.UpsertMessage(types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleAssistant, CreatedAt: created})

	snap = st.Snapshot()
	messages = snap.Messages("s1")
	if len(messages) != 1 {
		t.Fatalf("message duplicated: %+v", messages)
	}
	if messages[0].Role != types.MessageRoleAssistant {
		t.Fatalf("role not filled in: %+v", messages[0])
	}
	if got := snap.Parts("m1"); len(got) != 1 {
		t.Fatalf("part lost or duplicated: %+v", got)
	}
}

func TestStalePartRevisionIgnored(t *testing.T) {
	st := NewEntityStore()
	st.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "newer", Revision: 5}})
	st.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "older", Revision: 2}})

	part, ok := st.Snapshot().Part("p1")
	if !ok || part.Text != "newer" || part.Revision != 5 {
		t.Fatalf("stale write applied: %+v", part)
	}
}

func TestToolStateNeverRegresses(t *testing.T) {
	st := NewEntityStore()
	st.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeToolCall, ToolState: types.ToolStateOutputAvailable, Revision: 2}})
	st.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeToolCall, ToolState: types.ToolStateInputAvailable, Revision: 3}})

	part, _ := st.Snapshot().Part("p1")
	if part.ToolState != types.ToolStateOutputAvailable {
		t.Fatalf("terminal tool state regressed to %q", part.ToolState)
	}
}

func TestUpdateIsAtomicPerBatch(t *testing.T) {
	st := NewEntityStore()
	before := st.Snapshot().Version()
	st.Update(func(tx *Tx) {
		tx.UpsertSession(types.Session{ID: "s1", Status: types.SessionStatusBusy})
		tx.UpsertMessage(types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleUser})
		tx.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText}})
	})
	after := st.Snapshot().Version()
	if after != before+1 {
		t.Fatalf("expected one version bump per batch, got %d -> %d", before, after)
	}
	if v := st.Snapshot().SessionVersion("s1"); v != after {
		t.Fatalf("session version %d, want %d", v, after)
	}
}

func TestEmptyUpdateDoesNotBumpVersion(t *testing.T) {
	st := NewEntityStore()
	before := st.Snapshot().Version()
	st.Update(func(tx *Tx) {})
	if got := st.Snapshot().Version(); got != before {
		t.Fatalf("empty update bumped version to %d", got)
	}
}

func TestSessionUpsertMergesFields(t *testing.T) {
	st := NewEntityStore()
	created := time.Now().Add(-time.Minute)
	st.UpsertSession(types.Session{ID: "s1", Title: "first", Directory: "/work/a", Status: types.SessionStatusBusy, CreatedAt: created})
	st.UpsertSession(types.Session{ID: "s1", Status: types.SessionStatusIdle})

	sess, _ := st.Snapshot().Session("s1")
	if sess.Title != "first" || sess.Directory != "/work/a" {
		t.Fatalf("partial upsert wiped fields: %+v", sess)
	}
	if sess.Status != types.SessionStatusIdle {
		t.Fatalf("status not updated: %+v", sess)
	}
	if !sess.CreatedAt.Equal(created) {
		t.Fatalf("created timestamp lost")
	}
}

func TestRemoveSessionDropsChildren(t *testing.T) {
	st := NewEntityStore()
	st.Update(func(tx *Tx) {
		tx.UpsertSession(types.Session{ID: "s1", Status: types.SessionStatusBusy})
		tx.UpsertMessage(types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleUser})
		tx.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText}})
		tx.PutPermission(types.Permission{ID: "perm1", SessionID: "s1"})
	})
	st.RemoveSession("s1")

	snap := st.Snapshot()
	if _, ok := snap.Session("s1"); ok {
		t.Fatalf("session still present")
	}
	if got := snap.Messages("s1"); len(got) != 0 {
		t.Fatalf("messages still present: %+v", got)
	}
	if _, ok := snap.Part("p1"); ok {
		t.Fatalf("part still present")
	}
	if got := snap.Permissions("s1"); len(got) != 0 {
		t.Fatalf("permissions still present: %+v", got)
	}
}

func TestPermissionLifecycle(t *testing.T) {
	st := NewEntityStore()
	st.Update(func(tx *Tx) {
		tx.PutPermission(types.Permission{ID: "perm1", SessionID: "s1", Title: "run tests"})
	})
	if got := st.Snapshot().Permissions("s1"); len(got) != 1 {
		t.Fatalf("expected one pending permission, got %d", len(got))
	}
	// Replacing by ID must not duplicate.
	st.Update(func(tx *Tx) {
		tx.PutPermission(types.Permission{ID: "perm1", SessionID: "s1", Title: "run tests (edited)"})
	})
	got := st.Snapshot().Permissions("s1")
	if len(got) != 1 || got[0].Title != "run tests (edited)" {
		t.Fatalf("replace by id failed: %+v", got)
	}
	st.Update(func(tx *Tx) {
		tx.ResolvePermission("s1", "perm1")
	})
	if got := st.Snapshot().Permissions("s1"); len(got) != 0 {
		t.Fatalf("permission not resolved: %+v", got)
	}
}

func TestPlaceholderStatusExposed(t *testing.T) {
	st := NewEntityStore()
	st.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "hi"}})

	snap := st.Snapshot()
	if !snap.SessionPlaceholder("s1") {
		t.Fatalf("implied session should report as placeholder")
	}
	if !snap.MessagePlaceholder("m1") {
		t.Fatalf("implied message should report as placeholder")
	}

	st.UpsertSession(types.Session{ID: "s1", Title: "real", Status: types.SessionStatusBusy})
	st.UpsertMessage(types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleAssistant})

	snap = st.Snapshot()
	if snap.SessionPlaceholder("s1") {
		t.Fatalf("session info arrived, placeholder flag must clear")
	}
	if snap.MessagePlaceholder("m1") {
		t.Fatalf("message info arrived, placeholder flag must clear")
	}
	if snap.SessionPlaceholder("unknown") {
		t.Fatalf("unknown ids are not placeholders")
	}
}

func TestEnsurePartRegistersIdentityOnly(t *testing.T) {
	st := NewEntityStore()
	st.Update(func(tx *Tx) {
		tx.EnsurePart(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "streamed", Revision: 7})
	})
	part, ok := st.Snapshot().Part("p1")
	if !ok || part.Text != "" || part.Revision != 0 {
		t.Fatalf("skeleton must hold identity without content, got %+v", part)
	}

	// Repeated EnsurePart and a later full upsert must not duplicate or
	// regress the part.
	st.Update(func(tx *Tx) {
		tx.EnsurePart(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText})
		tx.BatchUpsertParts([]types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "streamed", Revision: 7}})
		tx.EnsurePart(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText})
	})
	parts := st.Snapshot().Parts("m1")
	if len(parts) != 1 || parts[0].Text != "streamed" || parts[0].Revision != 7 {
		t.Fatalf("expected one part with final content, got %+v", parts)
	}
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	st := NewEntityStore()
	st.Update(func(tx *Tx) {
		tx.UpsertMessage(types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleUser})
		tx.UpsertMessage(types.Message{ID: "m2", SessionID: "s1", Role: types.MessageRoleAssistant})
		tx.UpsertMessage(types.Message{ID: "m3", SessionID: "s1", Role: types.MessageRoleAssistant})
	})
	messages := st.Snapshot().Messages("s1")
	if len(messages) != 3 || messages[0].ID != "m1" || messages[1].ID != "m2" || messages[2].ID != "m3" {
		t.Fatalf("order not preserved: %+v", messages)
	}
}
