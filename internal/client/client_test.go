package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/types"
)

func TestSessionMessagesParsesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("sessionID") != "s1" || r.URL.Query().Get("limit") != "50" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Request-ID") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payload := []types.MessageWithParts{{
			Info:  types.Message{ID: "m1", SessionID: "s1", Role: types.MessageRoleUser},
			Parts: []types.Part{{ID: "p1", MessageID: "m1", SessionID: "s1", Type: types.PartTypeText, Text: "hi"}},
		}}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	c := New(server.URL, logging.Nop())
	messages, err := c.SessionMessages(context.Background(), "s1", 50)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Info.ID != "m1" || len(messages[0].Parts) != 1 {
		t.Fatalf("unexpected payload: %+v", messages)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "session is busy"})
	}))
	defer server.Close()

	c := New(server.URL, logging.Nop())
	_, err := c.SessionMessages(context.Background(), "s1", 0)
	apiErr := AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "session is busy" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestScopedClientTagsRequests(t *testing.T) {
	var gotDirectory, gotPath string
	var gotBody SendPromptRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDirectory = r.URL.Query().Get("directory")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	scoped := New(server.URL, logging.Nop()).Scoped("/work/demo")
	if err := scoped.SendPrompt(context.Background(), "s1", "do the thing"); err != nil {
		t.Fatalf("SendPrompt: %v", err)
	}
	if gotPath != "/session/prompt" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotDirectory != "/work/demo" {
		t.Fatalf("directory scope not propagated, got %q", gotDirectory)
	}
	if gotBody.SessionID != "s1" || gotBody.Text != "do the thing" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestRespondPermission(t *testing.T) {
	var gotPath string
	var gotBody RespondPermissionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	scoped := New(server.URL, logging.Nop()).Scoped("")
	if err := scoped.RespondPermission(context.Background(), "s1", "perm1", true); err != nil {
		t.Fatalf("RespondPermission: %v", err)
	}
	if gotPath != "/session/s1/permission" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.PermissionID != "perm1" || !gotBody.Approve {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}
