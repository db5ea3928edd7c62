package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/armyletters/letters-server/internal/domain"
)

// DefaultLiveCap is the head size pushed to a live subscription.
const DefaultLiveCap = 50

// PageQuery loads one page of a query. Store.QueryPage satisfies it.
type PageQuery func(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error)

// Hub fans write notifications out to live subscriptions. Each subscription
// runs one goroutine that re-queries the head of its result set whenever a
// matching letter changes; bursts of notifications coalesce into one query.
type Hub struct {
	query  PageQuery
	cap    int
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	query    domain.Query
	onChange func([]*domain.Letter)
	dirty    chan struct{}
	cancel   context.CancelFunc
}

// NewHub creates a hub that loads heads with query.
func NewHub(query PageQuery, liveCap int, logger *slog.Logger) *Hub {
	if liveCap <= 0 {
		liveCap = DefaultLiveCap
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		query:  query,
		cap:    liveCap,
		logger: logger,
		subs:   make(map[uint64]*subscription),
	}
}

// Subscribe pushes the current head of q to onChange immediately and again
// after every matching change, until the returned function is called or ctx
// ends. onChange is never called concurrently for one subscription.
func (h *Hub) Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	if q.Sort == "" {
		q.Sort = domain.SortNewest
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		query:    q,
		onChange: onChange,
		dirty:    make(chan struct{}, 1),
		cancel:   cancel,
	}
	sub.dirty <- struct{}{} // initial snapshot

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrHubClosed
	}
	subID := h.nextID
	h.nextID++
	h.subs[subID] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	go h.run(ctx, subID, sub)

	h.logger.Debug("live subscription started", "id", subID, "query", q.String())

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			h.remove(subID)
		})
	}, nil
}

// Notify marks every subscription whose filter admits letter as dirty.
func (h *Hub) Notify(letter *domain.Letter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !sub.query.Filter.Matches(letter) {
			continue
		}
		select {
		case sub.dirty <- struct{}{}:
		default:
			// A refresh is already queued.
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close cancels every subscription and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for subID, sub := range h.subs {
		sub.cancel()
		delete(h.subs, subID)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) remove(subID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, subID)
}

func (h *Hub) run(ctx context.Context, subID uint64, sub *subscription) {
	defer h.wg.Done()
	defer h.remove(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.dirty:
		}

		page, err := h.query(ctx, sub.query, "", h.cap)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.logger.Warn("live subscription query failed", "id", subID, "query", sub.query.String(), "error", err)
			continue
		}
		sub.onChange(page.Items)
	}
}
