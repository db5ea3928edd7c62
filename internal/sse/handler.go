package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
)

const (
	// writeTimeout bounds a single frame write. Heartbeats keep idle
	// streams under it.
	writeTimeout = 60 * time.Second
	// retryHint is the reconnect delay browsers use after a drop.
	retryHint = 3 * time.Second
)

// Subscriber opens live subscriptions on the letter store.
type Subscriber interface {
	Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error)
}

// Handler serves GET /api/v1/letters/stream.
//
// The member and sort query parameters select the live query. A stream gets
// a connected event, then a letters.snapshot with the head of that query on
// connect and after every matching change, plus the broadcast letter.*
// events for its member and periodic heartbeats.
type Handler struct {
	manager    *Manager
	subscriber Subscriber
	logger     *slog.Logger
}

// NewHandler creates a Handler. subscriber may be nil, in which case
// streams only carry broadcasts.
func NewHandler(manager *Manager, subscriber Subscriber, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, subscriber: subscriber, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	q, err := ParseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := openStream(w)
	if err != nil {
		h.logger.Error("streaming unsupported", "error", err)
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(q.Filter)
	if err != nil {
		h.logger.Error("failed to register SSE client", "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)
	s.logger = h.logger.With("client_id", client.ID)

	if err := s.send(NewConnectedEvent(client.ID, q)); err != nil {
		s.logger.Warn("failed to send connected event", "error", err)
		return
	}

	if h.subscriber != nil {
		unsubscribe, err := h.subscriber.Subscribe(ctx, q, func(letters []*domain.Letter) {
			h.manager.EmitToClient(client.ID, NewLettersSnapshotEvent(q, letters))
		})
		if err != nil {
			s.logger.Warn("live subscription failed", "error", err)
			return
		}
		defer unsubscribe()
	}

	s.pump(ctx, client)
}

// ParseQuery reads the member and sort query parameters.
func ParseQuery(r *http.Request) (domain.Query, error) {
	values := r.URL.Query()
	filter, ok := domain.ParseFilter(values.Get("member"))
	if !ok {
		return domain.Query{}, fmt.Errorf("unknown member %q", values.Get("member"))
	}
	sort, ok := domain.ParseSortOrder(values.Get("sort"))
	if !ok {
		return domain.Query{}, fmt.Errorf("unknown sort %q", values.Get("sort"))
	}
	return domain.Query{Filter: filter, Sort: sort}, nil
}

// stream writes text/event-stream frames to one response.
type stream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
	seq    uint64
}

// openStream writes the stream headers and the reconnect hint.
func openStream(w http.ResponseWriter) (*stream, error) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	s := &stream{w: w, rc: http.NewResponseController(w), logger: slog.New(slog.DiscardHandler)}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryHint.Milliseconds()); err != nil {
		return nil, err
	}
	if err := s.rc.Flush(); err != nil {
		return nil, err
	}
	return s, nil
}

// pump forwards client events until the client is closed or the request
// ends.
func (s *stream) pump(ctx context.Context, client *Client) {
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := s.send(event); err != nil {
				s.logger.Info("client disconnected during send")
				return
			}
		case <-client.Done:
			s.logger.Info("client closed by manager")
			return
		case <-ctx.Done():
			s.logger.Info("client context canceled")
			return
		}
	}
}

// send writes one frame:
//
//	id: <n>
//	event: <type>
//	data: <json>
func (s *stream) send(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event.Type, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Debug("write deadline unsupported", "error", err)
	}
	return nil
}
