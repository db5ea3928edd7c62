package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// DefaultPageSize is the page size when Options.PageSize is zero.
const DefaultPageSize = 20

// State is the loading state of a feed.
type State int

// Feed states.
const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateLoadingMore
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading-more"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	// IdentityID is the client identity used for likes.
	IdentityID string
	// Liked is the persisted set of liked letters. Defaults to an in-memory set.
	Liked LikedStore
	// PageSize is the number of letters per page.
	PageSize int
	// Query is the initial filter and sort.
	Query  domain.Query
	Logger *slog.Logger
}

// Item is one displayed letter.
type Item struct {
	Letter  *domain.Letter
	Liked   bool
	Pending bool
}

// Snapshot is an immutable view of the feed. Letters in it must not be modified.
type Snapshot struct {
	Version uint64
	Epoch   uint64
	State   State
	Query   domain.Query
	Search  string
	Items   []Item
	// Loaded counts held letters before the name search is applied.
	Loaded  int
	HasMore bool
	// Err is the read failure behind StateFailed, or a failed LoadMore.
	Err error
	// Notice is the last failed like toggle, until dismissed.
	Notice error
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Controller owns one feed: the loaded pages, the live subscription and
// the optimistic likes of one identity.
type Controller struct {
	adapter    Adapter
	identityID string
	liked      LikedStore
	tracker    *Tracker
	pageSize   int
	logger     *slog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	state       State
	query       domain.Query
	search      string
	epoch       uint64
	version     uint64
	letters     map[string]*domain.Letter
	cursor      string
	hasMore     bool
	err         error
	notice      error
	unsubscribe func()
	closed      bool
	listeners   []listener
	nextID      int
}

// New creates an idle controller. Call Start to load the first page.
func New(adapter Adapter, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Query.Sort == "" {
		opts.Query.Sort = domain.SortNewest
	}
	if opts.Liked == nil {
		opts.Liked = &memoryLiked{ids: make(map[string]struct{})}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		adapter:    adapter,
		identityID: opts.IdentityID,
		liked:      opts.Liked,
		tracker:    NewTracker(),
		pageSize:   opts.PageSize,
		logger:     opts.Logger,
		ctx:        ctx,
		stop:       stop,
		query:      opts.Query,
		letters:    make(map[string]*domain.Letter),
	}
}

// Start loads the first page and opens the live subscription.
// It does nothing once the feed has left StateIdle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	idle := c.state == StateIdle
	c.mu.Unlock()
	if !idle {
		return nil
	}
	return c.reload(ctx, nil)
}

// SetFilter switches the member filter. The cursor is reset and any
// in-flight result of the previous filter is discarded.
func (c *Controller) SetFilter(ctx context.Context, f domain.Filter) error {
	return c.reload(ctx, func(q *domain.Query) { q.Filter = f })
}

// SetSort switches the sort order, with the same reset as SetFilter.
func (c *Controller) SetSort(ctx context.Context, s domain.SortOrder) error {
	if s == "" {
		s = domain.SortNewest
	}
	return c.reload(ctx, func(q *domain.Query) { q.Sort = s })
}

// Retry reloads a failed feed, or repeats a failed LoadMore.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	state, err := c.state, c.err
	if state == StateReady && err != nil {
		c.err = nil
	}
	c.mu.Unlock()

	switch {
	case state == StateFailed:
		return c.reload(ctx, nil)
	case state == StateReady && err != nil:
		return c.LoadMore(ctx)
	default:
		return nil
	}
}

// reload starts a new epoch: it drops the held letters and the live
// subscription, loads the first page of the (possibly mutated) query and
// subscribes to it.
func (c *Controller) reload(ctx context.Context, mutate func(*domain.Query)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if mutate != nil {
		mutate(&c.query)
	}
	c.epoch++
	epoch, q := c.epoch, c.query
	c.state = StateLoading
	c.letters = make(map[string]*domain.Letter)
	c.cursor, c.hasMore, c.err = "", false, nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	if unsubscribe != nil {
		unsubscribe()
	}

	page, err := c.adapter.QueryPage(ctx, q, "", c.pageSize)

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("dropping stale first page", "query", q.String(), "epoch", epoch)
		return nil
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.publish()
		c.logger.Warn("feed load failed", "query", q.String(), "error", err)
		return err
	}
	merge(c.letters, q.Filter, page.Items)
	c.cursor, c.hasMore = page.NextCursor, page.HasMore
	c.state = StateReady
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	return c.subscribe(epoch, q)
}

func (c *Controller) subscribe(epoch uint64, q domain.Query) error {
	unsubscribe, err := c.adapter.Subscribe(c.ctx, q, func(letters []*domain.Letter) {
		c.applyLive(epoch, letters)
	})

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.publish()
		c.logger.Warn("live subscription failed", "query", q.String(), "error", err)
		return err
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return nil
}

func (c *Controller) applyLive(epoch uint64, letters []*domain.Letter) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	added := merge(c.letters, c.query.Filter, letters)
	c.changedLocked()
	c.mu.Unlock()

	c.logger.Debug("live update merged", "letters", len(letters), "added", added)
	c.publish()
}

// LoadMore appends the next page. It does nothing while a page is loading
// or when no further page exists.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateReady || !c.hasMore || c.cursor == "" {
		c.mu.Unlock()
		return nil
	}
	epoch, q, cursor := c.epoch, c.query, c.cursor
	c.state = StateLoadingMore
	c.err = nil
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	page, err := c.adapter.QueryPage(ctx, q, cursor, c.pageSize)

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("dropping stale page", "query", q.String(), "epoch", epoch)
		return nil
	}
	c.state = StateReady
	if err != nil {
		c.err = err
		c.changedLocked()
		c.mu.Unlock()
		c.publish()
		return err
	}
	merge(c.letters, q.Filter, page.Items)
	c.cursor, c.hasMore = page.NextCursor, page.HasMore
	c.changedLocked()
	c.mu.Unlock()
	c.publish()
	return nil
}

// Refresh reloads the first page without changing the query. Pages loaded
// beyond it are dropped and paging restarts from the fresh first page.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateFailed:
		c.mu.Unlock()
		return c.reload(ctx, nil)
	case StateReady:
	default:
		c.mu.Unlock()
		return nil
	}
	epoch, q := c.epoch, c.query
	c.state = StateLoading
	c.err = nil
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	page, err := c.adapter.QueryPage(ctx, q, "", c.pageSize)

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.state = StateReady
	if err != nil {
		c.err = err
		c.changedLocked()
		c.mu.Unlock()
		c.publish()
		return err
	}
	fresh := make(map[string]*domain.Letter, len(page.Items))
	merge(fresh, q.Filter, page.Items)
	c.letters = fresh
	c.cursor, c.hasMore = page.NextCursor, page.HasMore
	c.changedLocked()
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetSearch filters the loaded letters by sender name. No query is issued.
func (c *Controller) SetSearch(text string) {
	c.mu.Lock()
	if c.search == text {
		c.mu.Unlock()
		return
	}
	c.search = text
	c.changedLocked()
	c.mu.Unlock()
	c.publish()
}

// ToggleLike flips the identity's like on a loaded letter. The count and
// the local liked set change at once and are reverted if the store call
// fails. A toggle for a letter whose previous toggle is still in flight
// is ignored.
func (c *Controller) ToggleLike(ctx context.Context, letterID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.letters[letterID]; !ok {
		c.mu.Unlock()
		return domainerrors.NotFoundf("letter %s is not loaded", letterID)
	}
	current := c.liked.Has(letterID)
	if !c.tracker.Begin(letterID, !current) {
		c.mu.Unlock()
		c.logger.Debug("ignoring toggle while one is pending", "id", letterID)
		return nil
	}
	c.liked.Set(letterID, !current)
	c.notice = nil
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	updated, err := c.adapter.ToggleLike(ctx, letterID, c.identityID, current)

	c.mu.Lock()
	if err != nil {
		c.tracker.Rollback(letterID)
		c.liked.Set(letterID, current)
		c.notice = err
	} else {
		c.tracker.Commit(letterID)
		if _, held := c.letters[letterID]; held && updated != nil {
			merge(c.letters, c.query.Filter, []*domain.Letter{updated})
		}
	}
	c.changedLocked()
	c.mu.Unlock()
	c.publish()

	if err != nil {
		c.logger.Warn("like toggle rolled back", "id", letterID, "error", err)
	}
	return err
}

// DismissNotice clears the last toggle failure.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	if c.notice == nil {
		c.mu.Unlock()
		return
	}
	c.notice = nil
	c.changedLocked()
	c.mu.Unlock()
	c.publish()
}

// Letter returns a letter for the detail view, from the loaded set when
// possible.
func (c *Controller) Letter(ctx context.Context, letterID string) (*domain.Letter, error) {
	c.mu.Lock()
	l, ok := c.letters[letterID]
	if ok {
		if target, pending := c.tracker.Pending(letterID); pending {
			l = withPending(l, c.identityID, target)
		}
	}
	c.mu.Unlock()
	if ok {
		return l, nil
	}
	return c.adapter.GetLetter(ctx, letterID)
}

// Liked reports whether the identity likes letterID, counting a pending toggle.
func (c *Controller) Liked(letterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target, ok := c.tracker.Pending(letterID); ok {
		return target
	}
	return c.liked.Has(letterID)
}

// ToggleState returns the latest like toggle state of a letter. A committed
// or rolled-back toggle is reported once.
func (c *Controller) ToggleState(letterID string) (OpState, bool) {
	return c.tracker.State(letterID)
}

// Snapshot returns the current view of the feed.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn to receive a snapshot after every change and
// returns a function that removes it. Calls may come from any goroutine
// and out of order; keep the highest Version. fn must not call back into
// the controller synchronously.
func (c *Controller) OnChange(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	listenerID := c.nextID
	c.listeners = append(c.listeners, listener{id: listenerID, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == listenerID {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close tears down the live subscription. Results still in flight are
// discarded and later calls return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.listeners = nil
	c.mu.Unlock()

	c.stop()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) failLocked(err error) {
	c.state = StateFailed
	c.err = err
	c.changedLocked()
}

func (c *Controller) changedLocked() {
	c.version++
}

func (c *Controller) publish() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), len(c.listeners))
	for i, l := range c.listeners {
		listeners[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	display := make([]*domain.Letter, 0, len(c.letters))
	for letterID, l := range c.letters {
		if !matchesName(l.Name, c.search) {
			continue
		}
		if target, ok := c.tracker.Pending(letterID); ok {
			l = withPending(l, c.identityID, target)
		}
		display = append(display, l)
	}
	c.query.Sort.Sort(display)

	items := make([]Item, len(display))
	for i, l := range display {
		target, pending := c.tracker.Pending(l.ID)
		liked := target
		if !pending {
			liked = c.liked.Has(l.ID)
		}
		items[i] = Item{Letter: l, Liked: liked, Pending: pending}
	}

	return Snapshot{
		Version: c.version,
		Epoch:   c.epoch,
		State:   c.state,
		Query:   c.query,
		Search:  c.search,
		Items:   items,
		Loaded:  len(c.letters),
		HasMore: c.hasMore,
		Err:     c.err,
		Notice:  c.notice,
	}
}
