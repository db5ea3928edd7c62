package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

const (
	eventSnapshot = "letters.snapshot"
	maxEventSize  = 4 << 20
)

// Backoff is the reconnect policy of a live stream.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff starts at half a second and caps at 30 seconds.
var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}

func (b Backoff) next(d time.Duration) time.Duration {
	if d <= 0 {
		return b.Initial
	}
	d *= 2
	if d > b.Max {
		d = b.Max
	}
	return d
}

type snapshotData struct {
	Letters []*domain.Letter `json:"letters"`
}

type streamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Subscribe opens the live stream of q. The first connection is made before
// Subscribe returns so a refused stream surfaces as an error; later drops are
// retried with backoff. onChange receives every head snapshot and is never
// called concurrently. The returned function stops the stream and waits for
// its goroutine.
func (c *Client) Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	body, err := c.openStream(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runStream(ctx, q, body, onChange)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (c *Client) openStream(ctx context.Context, q domain.Query) (io.ReadCloser, error) {
	u := c.baseURL + "/api/v1/letters/stream"
	if params := queryParams(q); len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domainerrors.Read("create stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, domainerrors.Read("open stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp, domainerrors.CodeReadFailed)
	}
	return resp.Body, nil
}

func (c *Client) runStream(ctx context.Context, q domain.Query, body io.ReadCloser, onChange func([]*domain.Letter)) {
	var delay time.Duration
	for {
		err := c.readStream(body, onChange)
		body.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("live stream dropped", "query", q.String(), "error", err)

		for {
			delay = c.backoff.next(delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			body, err = c.openStream(ctx, q)
			if err == nil {
				delay = 0
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("live stream reconnect failed", "query", q.String(), "retry_in", c.backoff.next(delay), "error", err)
		}
	}
}

// readStream consumes SSE frames until the body ends.
func (c *Client) readStream(body io.Reader, onChange func([]*domain.Letter)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), maxEventSize)

	var eventType string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType == eventSnapshot && data.Len() > 0 {
				if err := dispatchSnapshot(data.String(), onChange); err != nil {
					c.logger.Warn("bad snapshot event", "error", err)
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func dispatchSnapshot(raw string, onChange func([]*domain.Letter)) error {
	var evt streamEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	var snap snapshotData
	if err := json.Unmarshal(evt.Data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Letters == nil {
		snap.Letters = []*domain.Letter{}
	}
	onChange(snap.Letters)
	return nil
}
