package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/types"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL     string
	http        *http.Client
	log         logging.Logger
	decodeDrops atomic.Uint64

	backoffInitial time.Duration
	backoffMax     time.Duration
}

func New(baseURL string, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: defaultTimeout},
		log:            log,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Scoped returns a lightweight handle that tags REST calls with a project
// directory. It shares the underlying connection pool; no extra streams are
// opened per scope.
func (c *Client) Scoped(directory string) *ScopedClient {
	return &ScopedClient{c: c, directory: strings.TrimSpace(directory)}
}

// SessionMessages fetches the ordered message history for a session. Used
// once per session for initial hydration; never polled.
func (c *Client) SessionMessages(ctx context.Context, sessionID string, limit int) ([]types.MessageWithParts, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	query := url.Values{}
	query.Set("sessionID", sessionID)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out []types.MessageWithParts
	if err := c.doJSON(ctx, http.MethodGet, "/session/messages", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSessions fetches the sessions known to the server, optionally filtered
// by directory.
func (c *Client) ListSessions(ctx context.Context, directory string) ([]*types.Session, error) {
	query := url.Values{}
	if strings.TrimSpace(directory) != "" {
		query.Set("directory", directory)
	}
	var out []*types.Session
	if err := c.doJSON(ctx, http.MethodGet, "/session", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error string `json:"error"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
