package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/validation"
)

// DefaultDebounce is the quiet period before a song search is sent.
const DefaultDebounce = 500 * time.Millisecond

// Creator stores a new letter.
type Creator interface {
	Create(ctx context.Context, d domain.Draft) (string, error)
}

// SongSearcher looks songs up in the catalog.
type SongSearcher interface {
	SearchSongs(ctx context.Context, query string) ([]domain.Track, error)
}

// SongSearcherFunc adapts a function to SongSearcher.
type SongSearcherFunc func(ctx context.Context, query string) ([]domain.Track, error)

// SearchSongs calls f.
func (f SongSearcherFunc) SearchSongs(ctx context.Context, query string) ([]domain.Track, error) {
	return f(ctx, query)
}

// Checker is the profanity check used for inline feedback.
type Checker interface {
	Check(text string) profanity.Result
}

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	// RequireTrack blocks submission until a song is selected.
	RequireTrack bool
	Debounce     time.Duration
	Checker      Checker
	Logger       *slog.Logger
}

// SongResults is the state of the song picker.
type SongResults struct {
	Query     string
	Tracks    []domain.Track
	Searching bool
	// Err is a lookup failure. Tracks is empty when it is set.
	Err error
}

// Composer holds a letter draft: inline validation, debounced song search
// and submission. The draft survives a failed submission.
type Composer struct {
	creator      Creator
	songs        SongSearcher
	checker      Checker
	validator    *validation.Validator
	requireTrack bool
	debounce     time.Duration
	logger       *slog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	draft    domain.Draft
	selected *domain.Track
	results  SongResults
	seq      uint64
	timer    *time.Timer
	closed   bool
	onChange func()

	submitting bool
}

// NewComposer creates an empty composer. songs may be nil when no catalog
// is configured; song search then always returns nothing.
func NewComposer(creator Creator, songs SongSearcher, opts ComposerOptions) *Composer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Checker == nil {
		opts.Checker = profanity.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Composer{
		creator:      creator,
		songs:        songs,
		checker:      opts.Checker,
		validator:    validation.New(validation.WithChecker(opts.Checker)),
		requireTrack: opts.RequireTrack,
		debounce:     opts.Debounce,
		logger:       opts.Logger,
		ctx:          ctx,
		stop:         stop,
		results:      SongResults{Tracks: []domain.Track{}},
	}
}

// OnChange sets a callback run after song results change. It runs on the
// search goroutine.
func (c *Composer) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Draft returns the current draft, with the selected song attached.
func (c *Composer) Draft() domain.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftLocked()
}

func (c *Composer) draftLocked() domain.Draft {
	d := c.draft
	if c.selected != nil {
		d.Track = c.selected.Snapshot()
	}
	return d
}

// Update edits the draft in place.
func (c *Composer) Update(edit func(d *domain.Draft)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edit(&c.draft)
}

// RequiresTrack reports whether a song must be picked before submitting.
func (c *Composer) RequiresTrack() bool {
	return c.requireTrack
}

// CheckMessage runs the profanity filter for inline feedback.
func (c *Composer) CheckMessage() profanity.Result {
	c.mu.Lock()
	msg := c.draft.Message
	c.mu.Unlock()
	return c.checker.Check(msg)
}

// Validate checks the draft without submitting it. The error carries
// field messages as details.
func (c *Composer) Validate() error {
	c.mu.Lock()
	d := c.draftLocked()
	c.mu.Unlock()
	return c.validate(d)
}

func (c *Composer) validate(d domain.Draft) error {
	if err := c.validator.Validate(d); err != nil {
		return err
	}
	if c.requireTrack && d.Track == nil {
		return domainerrors.ValidationWithDetails("validation failed", validation.FieldErrors{
			"spotify_track": "pick a song",
		})
	}
	return nil
}

// SelectTrack attaches a song to the draft. nil clears it.
func (c *Composer) SelectTrack(t *domain.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		c.selected = nil
		return
	}
	selected := *t
	c.selected = &selected
}

// Selected returns the attached song.
func (c *Composer) Selected() *domain.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Songs returns the song picker state.
func (c *Composer) Songs() SongResults {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// SearchSongs schedules a catalog search once query has been quiet for the
// debounce period. A newer call replaces a scheduled one and results of
// superseded searches are dropped. A blank query clears the results at once
// without a lookup.
func (c *Composer) SearchSongs(query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	c.cancelTimerLocked()

	query = strings.TrimSpace(query)
	if query == "" || c.songs == nil {
		c.results = SongResults{Query: query, Tracks: []domain.Track{}}
		fn := c.onChange
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}

	c.results.Query = query
	c.results.Searching = true
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.runSearch(seq, query)
	})
	c.mu.Unlock()
}

// cancelTimerLocked stops a scheduled search that has not started yet.
func (c *Composer) cancelTimerLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

func (c *Composer) runSearch(seq uint64, query string) {
	tracks, err := c.songs.SearchSongs(c.ctx, query)

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Warn("song lookup failed", "query", query, "error", err)
		tracks = nil
	}
	if tracks == nil {
		tracks = []domain.Track{}
	}
	c.results = SongResults{Query: query, Tracks: tracks, Err: err}
	c.timer = nil
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Submit validates the draft and stores it. On success the selected song
// and the draft are cleared and the new letter's id is returned, unless the
// draft was edited while the letter was being stored; then the edits are
// kept. On any failure the draft is left as it was. A Submit while another
// is in flight returns ErrSubmitting without doing anything.
func (c *Composer) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return "", ErrSubmitting
	}
	c.submitting = true
	sentDraft, sentTrack := c.draft, c.selected
	d := c.draftLocked()
	c.mu.Unlock()

	var letterID string
	err := c.validate(d)
	if err == nil {
		letterID, err = c.creator.Create(ctx, d)
	}

	c.mu.Lock()
	c.submitting = false
	if err == nil && c.draft == sentDraft && c.selected == sentTrack {
		c.draft = domain.Draft{}
		c.selected = nil
	}
	c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, domainerrors.ErrValidation) {
			c.logger.Warn("letter submission failed", "error", err)
		}
		return "", err
	}
	c.logger.Info("letter submitted", "id", letterID, "member", d.Member)
	return letterID, nil
}

// Submitting reports whether a Submit is in flight.
func (c *Composer) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Close cancels a scheduled or running song search and waits for it.
func (c *Composer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelTimerLocked()
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}
