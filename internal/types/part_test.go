package types

import "testing"

func TestNextToolStateMovesForwardOnly(t *testing.T) {
	cases := []struct {
		name     string
		current  ToolState
		incoming ToolState
		want     ToolState
	}{
		{"empty adopts incoming", "", ToolStateInputStreaming, ToolStateInputStreaming},
		{"streaming to available", ToolStateInputStreaming, ToolStateInputAvailable, ToolStateInputAvailable},
		{"available to output", ToolStateInputAvailable, ToolStateOutputAvailable, ToolStateOutputAvailable},
		{"available to error", ToolStateInputAvailable, ToolStateOutputError, ToolStateOutputError},
		{"no regression to streaming", ToolStateInputAvailable, ToolStateInputStreaming, ToolStateInputAvailable},
		{"output is terminal", ToolStateOutputAvailable, ToolStateInputAvailable, ToolStateOutputAvailable},
		{"error is terminal", ToolStateOutputError, ToolStateOutputAvailable, ToolStateOutputError},
		{"empty incoming keeps current", ToolStateInputAvailable, "", ToolStateInputAvailable},
	}
	for _, tc := range cases {
		if got := NextToolState(tc.current, tc.incoming); got != tc.want {
			t.Fatalf("%s: NextToolState(%q, %q) = %q, want %q", tc.name, tc.current, tc.incoming, got, tc.want)
		}
	}
}

func TestDecodeUnknownEventTypeIsIgnored(t *testing.T) {
	payload := EventPayload{Type: "lsp.diagnostics", Properties: []byte(`{"x":1}`)}
	props, err := payload.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if props != nil {
		t.Fatalf("expected unrecognized type to decode to nil, got %#v", props)
	}
}

func TestDecodeMalformedPropertiesFails(t *testing.T) {
	payload := EventPayload{Type: EventSessionStatus, Properties: []byte(`{`)}
	if _, err := payload.Decode(); err == nil {
		t.Fatalf("expected decode error for malformed properties")
	}
}

func TestDecodePartUpdated(t *testing.T) {
	payload := EventPayload{
		Type:       EventMessagePartUpdated,
		Properties: []byte(`{"part":{"id":"p1","messageID":"m1","sessionID":"s1","type":"text","text":"hi","revision":3}}`),
	}
	props, err := payload.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	part, ok := props.(*PartUpdatedProps)
	if !ok {
		t.Fatalf("expected *PartUpdatedProps, got %T", props)
	}
	if part.Part.ID != "p1" || part.Part.Text != "hi" || part.Part.Revision != 3 {
		t.Fatalf("unexpected part: %+v", part.Part)
	}
	if !part.Part.Streaming() {
		t.Fatalf("text part should report streaming")
	}
}
