package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/id"
)

// Defaults for a Manager.
const (
	DefaultQueueSize    = 1000
	DefaultClientBuffer = 100
	DefaultHeartbeat    = 30 * time.Second
)

// Client is one open stream.
type Client struct {
	ID          string
	ConnectedAt time.Time
	// Filter restricts broadcast letter events to one addressee.
	// The zero filter receives everything.
	Filter    domain.Filter
	EventChan chan Event
	Done      chan struct{}
}

// accepts reports whether the client's filter admits event.
func (c *Client) accepts(event Event) bool {
	return event.Member == "" || c.Filter.IsAll() || c.Filter.Member == event.Member
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeartbeat sets the keepalive interval. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Manager) { m.heartbeat = d }
}

// WithClientBuffer sets the per-client event buffer. A client whose buffer
// is full misses events until it catches up.
func WithClientBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.clientBuffer = n
		}
	}
}

// Stats are delivery counters since the manager started.
type Stats struct {
	Clients   int
	Delivered uint64
	Dropped   uint64
}

// Manager fans events out to connected streams. Broadcasts go through one
// queue drained by Run; per-stream snapshots go straight to the client.
type Manager struct {
	logger       *slog.Logger
	heartbeat    time.Duration
	clientBuffer int

	queue   chan Event
	running sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client

	// closing guards queue and the running group: Emit sends under the read
	// lock, Run registers and Shutdown closes under the write lock.
	closing sync.RWMutex
	closed  bool
	started bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewManager creates a Manager. Call Run to begin delivering broadcasts.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:       logger,
		heartbeat:    DefaultHeartbeat,
		clientBuffer: DefaultClientBuffer,
		queue:        make(chan Event, DefaultQueueSize),
		clients:      make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the goroutine that delivers queued events and heartbeats until
// ctx is done or the manager is shut down. It returns immediately. Calls
// after the first, or after Shutdown, do nothing.
func (m *Manager) Run(ctx context.Context) {
	m.closing.Lock()
	defer m.closing.Unlock()
	if m.closed || m.started {
		return
	}
	m.started = true
	m.running.Add(1)
	go m.loop(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	defer m.running.Done()

	var tick <-chan time.Time
	if m.heartbeat > 0 {
		ticker := time.NewTicker(m.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	m.logger.Info("SSE manager started", "heartbeat", m.heartbeat)
	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(event)
		case <-tick:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopped")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is already queued (until
// ctx expires) and closes every stream. Calling it again is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closing.Lock()
	if m.closed {
		m.closing.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closing.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range m.queue {
			m.broadcast(event)
		}
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE shutdown timed out, queued events lost")
	}

	m.running.Wait()
	m.closeAllClients()
	return nil
}

// Emit queues a broadcast. It implements store.EventEmitter; values that
// are not an Event are ignored.
func (m *Manager) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		m.logger.Error("ignoring non-SSE event", "type", fmt.Sprintf("%T", event))
		return
	}

	m.closing.RLock()
	defer m.closing.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- evt:
	default:
		m.dropped.Add(1)
		m.logger.Error("SSE queue full, dropping event", "event_type", evt.Type)
	}
}

// EmitToClient delivers event to one client without queueing. It reports
// false when the client is gone or its buffer is full.
func (m *Manager) EmitToClient(clientID string, event Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}
	return m.deliver(client, event)
}

func (m *Manager) broadcast(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sent := 0
	for _, client := range m.clients {
		if client.accepts(event) && m.deliver(client, event) {
			sent++
		}
	}
	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast", "event_type", event.Type, "member", event.Member, "clients", sent)
	}
}

// deliver is a non-blocking send. Callers hold m.mu.
func (m *Manager) deliver(client *Client, event Event) bool {
	select {
	case client.EventChan <- event:
		m.delivered.Add(1)
		return true
	default:
		m.dropped.Add(1)
		m.logger.Warn("slow SSE client, event dropped",
			"client_id", client.ID,
			"event_type", event.Type)
		return false
	}
}

// Connect registers a stream whose broadcasts are limited by filter.
func (m *Manager) Connect(filter domain.Filter) (*Client, error) {
	clientID, err := id.Generate(id.PrefixSSEClient)
	if err != nil {
		return nil, err
	}
	client := &Client{
		ID:          clientID,
		ConnectedAt: time.Now(),
		Filter:      filter,
		EventChan:   make(chan Event, m.clientBuffer),
		Done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.clients[clientID] = client
	n := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected", "client_id", clientID, "member", filter.String(), "clients", n)
	return client, nil
}

// Disconnect removes a stream and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
		closeClient(client)
	}
	n := len(m.clients)
	m.mu.Unlock()

	if ok {
		m.logger.Info("SSE client disconnected",
			"client_id", clientID,
			"connected_for", time.Since(client.ConnectedAt).Round(time.Second),
			"clients", n)
	}
}

// ClientCount returns the number of open streams.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Stats returns delivery counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Clients:   m.ClientCount(),
		Delivered: m.delivered.Load(),
		Dropped:   m.dropped.Load(),
	}
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for clientID, client := range m.clients {
		closeClient(client)
		delete(m.clients, clientID)
	}
}

// closeClient closes both channels. Callers hold m.mu for writing, so no
// send can race with the close.
func closeClient(c *Client) {
	close(c.Done)
	close(c.EventChan)
}
