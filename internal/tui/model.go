// Package tui is the terminal feed: letters as coloured cards with member
// filter, sort, local name search, likes, detail and preview views and a
// compose form. It only renders feed.Snapshot values; every change goes
// through the feed controller or composer.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/feed"
)

// loadMoreThreshold is how close to the end the cursor gets before the
// next page is requested.
const loadMoreThreshold = 3

const opTimeout = 15 * time.Second

type mode int

const (
	modeFeed mode = iota
	modeSearch
	modeDetail
	modePreview
	modeCompose
)

type (
	snapshotMsg  feed.Snapshot
	songsMsg     struct{}
	doneMsg      struct{}
	errMsg       struct{ err error }
	detailMsg    struct{ letter *domain.Letter }
	submittedMsg struct{ letterID string }
)

// filters lists the filter cycle: all, then every member.
var filters = append([]domain.Filter{domain.FilterAll}, func() []domain.Filter {
	out := make([]domain.Filter, len(domain.Members))
	for i, m := range domain.Members {
		out[i] = domain.FilterFor(m)
	}
	return out
}()...)

// Model is the bubbletea model of the feed.
type Model struct {
	ctrl     *feed.Controller
	composer *feed.Composer
	styles   Styles

	snap   feed.Snapshot
	cursor int
	mode   mode
	width  int
	height int

	search  textinput.Model
	spinner spinner.Model
	form    form

	detail    *domain.Letter
	status    string
	statusErr bool
}

// New creates the model. composer may be nil, which disables composing.
func New(ctrl *feed.Controller, composer *feed.Composer) Model {
	si := textinput.New()
	si.Placeholder = "Search by name..."
	si.CharLimit = domain.MaxNameLength
	si.Width = 30

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctrl:     ctrl,
		composer: composer,
		styles:   DefaultStyles(),
		snap:     ctrl.Snapshot(),
		width:    80,
		height:   24,
		search:   si,
		spinner:  sp,
		form:     newForm(),
	}
}

// Run starts the terminal program and blocks until the user quits.
func Run(ctx context.Context, ctrl *feed.Controller, composer *feed.Composer, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctrl, composer), opts...)

	// Sends happen off the caller's goroutine: the controller may publish
	// from inside Update.
	remove := ctrl.OnChange(func(s feed.Snapshot) {
		go p.Send(snapshotMsg(s))
	})
	defer remove()
	if composer != nil {
		composer.OnChange(func() { go p.Send(songsMsg{}) })
	}

	_, err := p.Run()
	return err
}

// Init starts the feed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run(m.ctrl.Start))
}

// run executes a controller operation off the event loop.
func (m Model) run(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			return errMsg{err: err}
		}
		return doneMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.form.setWidth(msg.Width)
		return m, nil

	case snapshotMsg:
		if msg.Version >= m.snap.Version {
			m.setSnapshot(feed.Snapshot(msg))
		}
		return m, nil

	case doneMsg:
		m.setSnapshot(m.ctrl.Snapshot())
		return m, nil

	case errMsg:
		m.setSnapshot(m.ctrl.Snapshot())
		m.status, m.statusErr = msg.err.Error(), true
		if m.mode == modeCompose {
			m.form.setErrors(msg.err)
		}
		return m, nil

	case detailMsg:
		m.detail = msg.letter
		m.mode = modeDetail
		return m, nil

	case submittedMsg:
		m.form.reset()
		m.mode = modeFeed
		m.status, m.statusErr = "Letter sent!", false
		return m, m.openDetail(msg.letterID)

	case songsMsg:
		if m.composer != nil {
			m.form.clampSong(len(m.composer.Songs().Tracks))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeDetail, modePreview:
			return m.updateOverlay(msg)
		case modeCompose:
			return m.updateCompose(msg)
		default:
			return m.updateFeed(msg)
		}
	}
	return m, nil
}

func (m *Model) setSnapshot(s feed.Snapshot) {
	m.snap = s
	if m.cursor >= len(s.Items) {
		m.cursor = max(len(s.Items)-1, 0)
	}
}

func (m Model) selected() (feed.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Items) {
		return feed.Item{}, false
	}
	return m.snap.Items[m.cursor], true
}

func (m Model) updateFeed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.snap.Items)-1 {
			m.cursor++
		}
		return m, m.maybeLoadMore()

	case "f", "F":
		next := nextFilter(m.snap.Query.Filter, msg.String() == "F")
		m.cursor = 0
		return m, m.run(func(ctx context.Context) error { return m.ctrl.SetFilter(ctx, next) })

	case "s":
		next := nextSort(m.snap.Query.Sort)
		m.cursor = 0
		return m, m.run(func(ctx context.Context) error { return m.ctrl.SetSort(ctx, next) })

	case "/":
		m.mode = modeSearch
		m.search.SetValue(m.snap.Search)
		cmd := m.search.Focus()
		return m, cmd

	case "l":
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		letterID := item.Letter.ID
		return m, m.run(func(ctx context.Context) error { return m.ctrl.ToggleLike(ctx, letterID) })

	case "enter":
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.openDetail(item.Letter.ID)

	case " ":
		if item, ok := m.selected(); ok {
			m.detail = item.Letter
			m.mode = modePreview
		}
		return m, nil

	case "r":
		if m.snap.State == feed.StateFailed || m.snap.Err != nil {
			return m, m.run(m.ctrl.Retry)
		}
		return m, m.run(m.ctrl.Refresh)

	case "x":
		m.status = ""
		m.ctrl.DismissNotice()
		m.setSnapshot(m.ctrl.Snapshot())
		return m, nil

	case "n":
		if m.composer == nil {
			return m, nil
		}
		m.mode = modeCompose
		m.form.errs = nil
		cmd := m.form.focusCurrent()
		return m, cmd
	}
	return m, nil
}

// maybeLoadMore requests the next page once the cursor nears the end.
func (m Model) maybeLoadMore() tea.Cmd {
	if !m.snap.HasMore || m.snap.State != feed.StateReady || m.snap.Search != "" {
		return nil
	}
	if m.cursor < len(m.snap.Items)-loadMoreThreshold {
		return nil
	}
	return m.run(m.ctrl.LoadMore)
}

func (m Model) openDetail(letterID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		l, err := m.ctrl.Letter(ctx, letterID)
		if err != nil {
			return errMsg{err: err}
		}
		return detailMsg{letter: l}
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = modeFeed
		m.search.Blur()
		return m, nil
	case tea.KeyEsc:
		m.mode = modeFeed
		m.search.Blur()
		m.search.SetValue("")
		m.ctrl.SetSearch("")
		m.setSnapshot(m.ctrl.Snapshot())
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.ctrl.SetSearch(m.search.Value())
	m.cursor = 0
	m.setSnapshot(m.ctrl.Snapshot())
	return m, cmd
}

func (m Model) updateOverlay(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", " ", "enter", "backspace":
		m.mode = modeFeed
		m.detail = nil
	case "l":
		if m.detail == nil {
			return m, nil
		}
		letterID := m.detail.ID
		return m, tea.Sequence(
			m.run(func(ctx context.Context) error { return m.ctrl.ToggleLike(ctx, letterID) }),
			m.openDetail(letterID),
		)
	}
	return m, nil
}

func nextFilter(current domain.Filter, backwards bool) domain.Filter {
	for i, f := range filters {
		if f == current {
			if backwards {
				return filters[(i-1+len(filters))%len(filters)]
			}
			return filters[(i+1)%len(filters)]
		}
	}
	return domain.FilterAll
}

func nextSort(current domain.SortOrder) domain.SortOrder {
	for i, s := range domain.SortOrders {
		if s == current {
			return domain.SortOrders[(i+1)%len(domain.SortOrders)]
		}
	}
	return domain.SortNewest
}
