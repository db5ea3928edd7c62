package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/feed"
	"github.com/armyletters/letters-server/internal/validation"
)

type field int

const (
	fieldName field = iota
	fieldMember
	fieldMessage
	fieldCountry
	fieldSong
	fieldCount
)

var fieldLabels = [fieldCount]string{"Name", "To", "Message", "Country", "Song"}

// fieldKeys maps form fields to validation error keys.
var fieldKeys = [fieldCount]string{"name", "member", "message", "country", "spotify_track"}

// form is the compose screen. The composer owns the draft; the inputs only
// edit it.
type form struct {
	focus   field
	name    textinput.Model
	member  int
	message textarea.Model
	country textinput.Model
	song    textinput.Model
	songIdx int
	width   int

	errs    map[string]string
	blocked []string
}

func newForm() form {
	name := textinput.New()
	name.Placeholder = "Your name"
	name.CharLimit = domain.MaxNameLength

	msg := textarea.New()
	msg.Placeholder = "Write your letter..."
	msg.ShowLineNumbers = false
	msg.CharLimit = 0
	msg.SetHeight(6)

	country := textinput.New()
	country.Placeholder = "Optional"
	country.CharLimit = domain.MaxCountryLength

	song := textinput.New()
	song.Placeholder = "Search a song"

	f := form{name: name, message: msg, country: country, song: song, member: -1}
	f.setWidth(80)
	return f
}

func (f *form) setWidth(width int) {
	f.width = width
	w := max(width-16, 20)
	f.name.Width = w
	f.country.Width = w
	f.song.Width = w
	f.message.SetWidth(w)
}

func (f *form) reset() {
	width := f.width
	*f = newForm()
	f.setWidth(width)
}

func (f *form) blur() {
	f.name.Blur()
	f.message.Blur()
	f.country.Blur()
	f.song.Blur()
}

func (f *form) focusCurrent() tea.Cmd {
	f.blur()
	switch f.focus {
	case fieldName:
		return f.name.Focus()
	case fieldMessage:
		return f.message.Focus()
	case fieldCountry:
		return f.country.Focus()
	case fieldSong:
		return f.song.Focus()
	}
	return nil
}

func (f *form) clampSong(n int) {
	if f.songIdx >= n {
		f.songIdx = max(n-1, 0)
	}
}

func (f *form) memberValue() domain.Member {
	if f.member < 0 || f.member >= len(domain.Members) {
		return ""
	}
	return domain.Members[f.member]
}

// setErrors pulls per-field messages out of a validation error.
func (f *form) setErrors(err error) {
	f.errs, f.blocked, _ = validation.Details(err)
}

func (m Model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.form
	switch msg.String() {
	case "esc":
		// The draft stays in the composer.
		f.blur()
		m.mode = modeFeed
		return m, nil

	case "tab":
		f.focus = (f.focus + 1) % fieldCount
		cmd := f.focusCurrent()
		return m, cmd

	case "shift+tab":
		f.focus = (f.focus + fieldCount - 1) % fieldCount
		cmd := f.focusCurrent()
		return m, cmd

	case "ctrl+s":
		return m, m.submit()
	}

	var cmd tea.Cmd
	switch f.focus {
	case fieldName:
		f.name, cmd = f.name.Update(msg)
	case fieldMember:
		switch msg.String() {
		case "left", "h":
			f.member = (f.member - 1 + len(domain.Members)) % len(domain.Members)
		case "right", "l", " ":
			f.member = (f.member + 1) % len(domain.Members)
		}
	case fieldMessage:
		f.message, cmd = f.message.Update(msg)
	case fieldCountry:
		f.country, cmd = f.country.Update(msg)
	case fieldSong:
		cmd = m.updateSong(msg)
	}
	m.syncDraft()
	return m, cmd
}

func (m *Model) updateSong(msg tea.KeyMsg) tea.Cmd {
	f := &m.form
	tracks := m.composer.Songs().Tracks
	switch msg.String() {
	case "up":
		if f.songIdx > 0 {
			f.songIdx--
		}
		return nil
	case "down":
		if f.songIdx < len(tracks)-1 {
			f.songIdx++
		}
		return nil
	case "enter":
		if f.songIdx < len(tracks) {
			t := tracks[f.songIdx]
			m.composer.SelectTrack(&t)
		}
		return nil
	case "ctrl+d":
		m.composer.SelectTrack(nil)
		return nil
	}

	before := f.song.Value()
	var cmd tea.Cmd
	f.song, cmd = f.song.Update(msg)
	if q := f.song.Value(); q != before {
		f.songIdx = 0
		m.composer.SearchSongs(q)
	}
	return cmd
}

func (m *Model) syncDraft() {
	f := &m.form
	m.composer.Update(func(d *domain.Draft) {
		d.Name = strings.TrimSpace(f.name.Value())
		d.Member = f.memberValue()
		d.Message = f.message.Value()
		d.Country = strings.TrimSpace(f.country.Value())
	})
}

func (m Model) submit() tea.Cmd {
	composer := m.composer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		letterID, err := composer.Submit(ctx)
		if errors.Is(err, feed.ErrSubmitting) {
			return nil
		}
		if err != nil {
			return errMsg{err: err}
		}
		return submittedMsg{letterID: letterID}
	}
}
