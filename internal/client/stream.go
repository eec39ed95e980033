package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/types"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
)

// Stream owns the lifecycle of the single global event connection: connect,
// decode, hand off, reconnect with exponential backoff. It returns only when
// ctx is cancelled. Each decoded event goes straight to handler; the stream
// holds no buffering state of its own.
func (c *Client) Stream(ctx context.Context, handler func(types.Event)) error {
	backoff := c.backoffInitial
	for {
		delivered, err := c.streamOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that stayed open long enough to deliver at least one
		// frame resets the backoff.
		if delivered > 0 {
			backoff = c.backoffInitial
		}
		c.log.Warn("event stream disconnected",
			logging.F("err", err),
			logging.F("delivered", delivered),
			logging.F("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = c.nextBackoff(backoff)
	}
}

// nextBackoff doubles the retry delay toward the cap.
func (c *Client) nextBackoff(previous time.Duration) time.Duration {
	next := previous * 2
	if next > c.backoffMax {
		return c.backoffMax
	}
	return next
}

// DecodeDrops reports how many malformed stream frames have been discarded.
func (c *Client) DecodeDrops() uint64 {
	return c.decodeDrops.Load()
}

func (c *Client) streamOnce(ctx context.Context, handler func(types.Event)) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The streaming request must not share the REST client's timeout.
	httpClient := &http.Client{Transport: c.http.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, decodeAPIError(resp)
	}

	c.log.Debug("event stream connected", logging.F("url", c.baseURL+"/event"))

	delivered := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			payload := strings.Join(dataLines, "\n")
			dataLines = dataLines[:0]
			var event types.Event
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				// Malformed frames are dropped; the stream self-heals on the
				// next frame.
				c.decodeDrops.Add(1)
				c.log.Debug("dropping malformed stream frame", logging.F("err", err))
				continue
			}
			handler(event)
			delivered++
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
	}
	return delivered, scanner.Err()
}
