package store

import (
	"testing"
	"time"

	"github.com/ItsWendell/palot/internal/types"
)

func TestStreamBufferKeepsLatestValue(t *testing.T) {
	buf := NewStreamBuffer(50 * time.Millisecond)
	buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "Hel"})
	buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "Hello"})

	part, ok := buf.Get("p1")
	if !ok || part.Text != "Hello" {
		t.Fatalf("expected latest value, got %+v", part)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected one buffered part, got %d", buf.Len())
	}
}

func TestStreamBufferNotifyThrottle(t *testing.T) {
	buf := NewStreamBuffer(time.Hour)
	first := buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "a"})
	second := buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "ab"})
	if !first {
		t.Fatalf("first put should grant a notification")
	}
	if second {
		t.Fatalf("second put inside the interval should be throttled")
	}
}

func TestDrainSessionScopedToSession(t *testing.T) {
	buf := NewStreamBuffer(50 * time.Millisecond)
	buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "one"})
	buf.Put(types.Part{ID: "p2", MessageID: "m2", SessionID: "s1", Type: types.PartTypeReasoning, Text: "two"})
	buf.Put(types.Part{ID: "p3", MessageID: "m3", SessionID: "other", Type: types.PartTypeText, Text: "keep"})

	drained := buf.DrainSession("s1")
	if len(drained) != 2 {
		t.Fatalf("expected two parts drained, got %d", len(drained))
	}
	if drained[0].Text != "one" || drained[1].Text != "two" {
		t.Fatalf("unexpected drain content: %+v", drained)
	}
	if buf.Len() != 1 {
		t.Fatalf("other session's part should survive, len=%d", buf.Len())
	}
	if again := buf.DrainSession("s1"); len(again) != 0 {
		t.Fatalf("second drain should be empty, got %+v", again)
	}
}

func TestDrainSessionPreservesArrivalOrder(t *testing.T) {
	buf := NewStreamBuffer(50 * time.Millisecond)
	ids := []string{"p3", "p0", "p7", "p1", "p5", "p2", "p6", "p4"}
	for _, id := range ids {
		buf.Put(types.Part{ID: id, MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: id})
	}
	// Re-Put of a known part must not move it.
	buf.Put(types.Part{ID: "p0", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "p0 more"})

	drained := buf.DrainSession("s1")
	if len(drained) != len(ids) {
		t.Fatalf("drained %d parts, want %d", len(drained), len(ids))
	}
	for i, id := range ids {
		if drained[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, drained[i].ID, id)
		}
	}
	if drained[1].Text != "p0 more" {
		t.Fatalf("re-Put must keep latest value, got %q", drained[1].Text)
	}
}

func TestStreamBufferTrailingNotify(t *testing.T) {
	buf := NewStreamBuffer(20 * time.Millisecond)
	notified := make(chan struct{}, 1)
	buf.OnNotify(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	if !buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "a"}) {
		t.Fatalf("first put should grant a notification")
	}
	if buf.Put(types.Part{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "ab"}) {
		t.Fatalf("second put inside the interval should be throttled")
	}

	// The throttled write must still surface without further traffic.
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatalf("trailing tick never fired")
	}
}
