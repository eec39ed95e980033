package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ItsWendell/palot/internal/types"
)

// ScopedClient routes mutations through the server for one project
// directory. Results are never applied locally; the engine reflects them
// once they echo back through the event stream.
type ScopedClient struct {
	c         *Client
	directory string
}

type SendPromptRequest struct {
	SessionID string `json:"sessionID"`
	Text      string `json:"text"`
}

type RespondPermissionRequest struct {
	PermissionID string `json:"permissionID"`
	Approve      bool   `json:"approve"`
}

type ReplyQuestionRequest struct {
	QuestionID string `json:"questionID"`
	Answer     string `json:"answer"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

func (s *ScopedClient) Directory() string {
	return s.directory
}

func (s *ScopedClient) query() url.Values {
	query := url.Values{}
	if s.directory != "" {
		query.Set("directory", s.directory)
	}
	return query
}

func (s *ScopedClient) SessionMessages(ctx context.Context, sessionID string, limit int) ([]types.MessageWithParts, error) {
	return s.c.SessionMessages(ctx, sessionID, limit)
}

func (s *ScopedClient) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return s.c.ListSessions(ctx, s.directory)
}

func (s *ScopedClient) SendPrompt(ctx context.Context, sessionID, text string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	body := SendPromptRequest{SessionID: sessionID, Text: text}
	return s.c.doJSON(ctx, http.MethodPost, "/session/prompt", s.query(), body, nil)
}

func (s *ScopedClient) Abort(ctx context.Context, sessionID string) error {
	return s.c.doJSON(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/abort", s.query(), nil, nil)
}

func (s *ScopedClient) RenameSession(ctx context.Context, sessionID, title string) error {
	body := RenameSessionRequest{Title: title}
	return s.c.doJSON(ctx, http.MethodPatch, "/session/"+url.PathEscape(sessionID), s.query(), body, nil)
}

func (s *ScopedClient) RespondPermission(ctx context.Context, sessionID, permissionID string, approve bool) error {
	body := RespondPermissionRequest{PermissionID: permissionID, Approve: approve}
	return s.c.doJSON(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/permission", s.query(), body, nil)
}

func (s *ScopedClient) ReplyQuestion(ctx context.Context, sessionID, questionID, answer string) error {
	body := ReplyQuestionRequest{QuestionID: questionID, Answer: answer}
	return s.c.doJSON(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/question", s.query(), body, nil)
}

func (s *ScopedClient) RejectQuestion(ctx context.Context, sessionID, questionID string) error {
	return s.c.doJSON(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID)+"/question/"+url.PathEscape(questionID), s.query(), nil, nil)
}
