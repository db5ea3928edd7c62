package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAdapter is an in-memory store with hooks to block or fail calls.
type fakeAdapter struct {
	mu      sync.Mutex
	letters []*domain.Letter
	subs    map[int]func([]*domain.Letter)
	nextSub int

	pageHook   func(q domain.Query, cursor string) error
	toggleHook func(letterID string) error
	createErr  error

	pageCalls   int
	toggleCalls int
	created     []domain.Draft
}

func newFakeAdapter(letters ...*domain.Letter) *fakeAdapter {
	return &fakeAdapter{letters: letters, subs: make(map[int]func([]*domain.Letter))}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var baseTime = time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)

// letter builds a letter whose timestamp grows with n.
func letter(n int, name string, member domain.Member, likes int) *domain.Letter {
	l := &domain.Letter{
		ID:         fmt.Sprintf("ltr-%02d", n),
		Name:       name,
		Member:     member,
		Message:    "hello",
		Timestamp:  baseTime.Add(time.Duration(n) * time.Minute),
		ColorClass: "card-1",
		LikedBy:    []string{},
	}
	for i := range likes {
		l.LikedBy = append(l.LikedBy, fmt.Sprintf("other-%d", i))
	}
	l.Likes = likes
	return l
}

func (f *fakeAdapter) Create(_ context.Context, d domain.Draft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, d)
	l := &domain.Letter{
		ID:         fmt.Sprintf("ltr-new-%d", len(f.created)),
		Name:       d.Name,
		Member:     d.Member,
		Message:    d.Message,
		Timestamp:  baseTime.Add(24 * time.Hour),
		ColorClass: "card-2",
		LikedBy:    []string{},
	}
	f.letters = append(f.letters, l)
	return l.ID, nil
}

func (f *fakeAdapter) GetLetter(_ context.Context, letterID string) (*domain.Letter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.letters {
		if l.ID == letterID {
			return l.Clone(), nil
		}
	}
	return nil, domainerrors.NotFound("letter not found")
}

func (f *fakeAdapter) QueryPage(_ context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error) {
	f.mu.Lock()
	f.pageCalls++
	hook := f.pageHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(q, cursor); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*domain.Letter
	for _, l := range f.letters {
		if q.Filter.Matches(l) {
			matched = append(matched, l.Clone())
		}
	}
	q.Sort.Sort(matched)

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, domainerrors.Validation("invalid cursor")
		}
		start = n
	}
	end := min(start+limit, len(matched))
	page := &domain.Page{Items: matched[start:end]}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeAdapter) ToggleLike(_ context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error) {
	f.mu.Lock()
	f.toggleCalls++
	hook := f.toggleHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(letterID); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.letters {
		if l.ID == letterID {
			l.ApplyLike(identityID, !currentlyLiked)
			return l.Clone(), nil
		}
	}
	return nil, domainerrors.NotFound("letter not found")
}

func (f *fakeAdapter) Subscribe(_ context.Context, _ domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	subID := f.nextSub
	f.subs[subID] = onChange
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, subID)
	}, nil
}

// push delivers letters to every open subscription.
func (f *fakeAdapter) push(letters ...*domain.Letter) {
	f.mu.Lock()
	subs := make([]func([]*domain.Letter), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(letters)
	}
}

func (f *fakeAdapter) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeAdapter) setPageHook(hook func(q domain.Query, cursor string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageHook = hook
}

func (f *fakeAdapter) setToggleHook(hook func(letterID string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleHook = hook
}

func (f *fakeAdapter) calls() (pages, toggles int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls, f.toggleCalls
}

func itemIDs(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Letter.ID
	}
	return out
}

func itemByID(t *testing.T, snap Snapshot, letterID string) Item {
	t.Helper()
	for _, it := range snap.Items {
		if it.Letter.ID == letterID {
			return it
		}
	}
	t.Fatalf("letter %s not displayed", letterID)
	return Item{}
}
