package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/feed"
	"github.com/armyletters/letters-server/internal/media/card"
)

const excerptLines = 3

// View renders the current screen.
func (m Model) View() string {
	switch m.mode {
	case modeCompose:
		return m.composeView()
	case modeDetail, modePreview:
		if m.detail != nil {
			return m.letterView(m.detail)
		}
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	if m.mode == modeSearch || m.snap.Search != "" {
		b.WriteString(m.styles.Label.Render("Search") + m.search.View() + "\n")
	}
	b.WriteString(m.listView())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	title := fmt.Sprintf("Letters  %s · %s", filterLabel(m.snap.Query.Filter), m.snap.Query.Sort)
	return m.styles.Header.Width(m.width).Render(title)
}

func filterLabel(f domain.Filter) string {
	if f.IsAll() {
		return "All members"
	}
	return "To " + string(f.Member)
}

func (m Model) listView() string {
	switch m.snap.State {
	case feed.StateIdle, feed.StateLoading:
		return m.spinner.View() + " Loading letters..."
	case feed.StateFailed:
		return m.styles.Error.Render("Could not load letters: "+errText(m.snap.Err)) +
			"\n" + m.styles.Muted.Render("Press r to retry.")
	}

	if len(m.snap.Items) == 0 {
		if m.snap.Search != "" {
			return m.styles.Muted.Render(fmt.Sprintf("No letters from %q.", m.snap.Search))
		}
		return m.styles.Muted.Render("No letters yet. Press n to write the first one.")
	}

	start, end := m.window()
	cards := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		cards = append(cards, m.cardView(m.snap.Items[i], i == m.cursor))
	}
	switch {
	case m.snap.State == feed.StateLoadingMore:
		cards = append(cards, m.spinner.View()+" Loading more...")
	case m.snap.Err != nil:
		cards = append(cards, m.styles.Error.Render("Could not load more: "+errText(m.snap.Err)+" (r to retry)"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

// cardHeight is the rendered height of one card including its border.
const cardHeight = excerptLines + 4

// window returns the item range that fits on screen around the cursor.
func (m Model) window() (int, int) {
	visible := max((m.height-4)/cardHeight, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	return start, min(start+visible, len(m.snap.Items))
}

func (m Model) cardView(item feed.Item, selected bool) string {
	l := item.Letter
	width := max(m.width-4, 20)

	heart := "♡"
	if item.Liked {
		heart = "♥"
	}
	likes := fmt.Sprintf("%s %d", heart, l.Likes)
	if item.Pending {
		likes += "…"
	}
	head := fmt.Sprintf("To %s", l.Member)
	gap := max(width-lipgloss.Width(head)-lipgloss.Width(likes)-2, 1)
	lines := []string{head + strings.Repeat(" ", gap) + likes}

	lines = append(lines, card.Wrap(l.Message, width-2, excerptLines)...)
	lines = append(lines, signature(l))

	return m.styles.CardStyle(l.ColorClass, selected).Width(width).Render(strings.Join(lines, "\n"))
}

func signature(l *domain.Letter) string {
	sig := "From " + l.Name
	if l.Country != "" {
		sig += ", " + l.Country
	}
	if l.Track != nil {
		sig += "  ♪ " + l.Track.Name
		if l.Track.Artist != "" {
			sig += " - " + l.Track.Artist
		}
	}
	return sig
}

func (m Model) letterView(l *domain.Letter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To %s\n\n", l.Member)
	b.WriteString(l.Message)
	b.WriteString("\n\n")
	b.WriteString(signature(l))
	b.WriteString("\n")

	liked := m.ctrl.Liked(l.ID)
	heart := "♡"
	if liked {
		heart = "♥"
	}
	fmt.Fprintf(&b, "%s %d  ·  %s\n", heart, l.Likes, l.Timestamp.Local().Format("Jan 2, 2006 15:04"))

	help := "esc close · l like"
	if m.mode == modePreview {
		help = "space close · l like"
	}
	width := max(m.width-8, 20)
	body := m.styles.Overlay.Width(width).Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.styles.Footer.Render(help))
}

func (m Model) footerView() string {
	var parts []string
	if m.snap.Notice != nil {
		parts = append(parts, m.styles.Error.Render("Like failed: "+errText(m.snap.Notice)+" (x to dismiss)"))
	}
	if m.status != "" {
		style := m.styles.Success
		if m.statusErr {
			style = m.styles.Error
		}
		parts = append(parts, style.Render(m.status))
	}

	help := "↑/↓ move · enter open · space preview · l like · f filter · s sort · / search · r refresh · q quit"
	if m.composer != nil {
		help = "n write · " + help
	}
	parts = append(parts, m.styles.Footer.Render(help))
	return strings.Join(parts, "\n")
}

func (m Model) composeView() string {
	f := m.form
	var b strings.Builder
	b.WriteString(m.styles.Header.Width(m.width).Render("Write a letter"))
	b.WriteString("\n\n")

	for i := range fieldCount {
		label := m.styles.Label
		if f.focus == i {
			label = m.styles.Focused
		}
		b.WriteString(label.Render(fieldLabels[i]))
		b.WriteString(m.fieldView(i))
		b.WriteString("\n")
		if msg, ok := f.errs[fieldKeys[i]]; ok {
			b.WriteString(m.styles.Label.Render("") + m.styles.Error.Render(msg) + "\n")
		}
	}

	if len(f.blocked) > 0 {
		b.WriteString(m.styles.Error.Render("Please remove: " + strings.Join(f.blocked, ", ")))
		b.WriteString("\n")
	}
	if m.status != "" && m.statusErr {
		b.WriteString(m.styles.Error.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Footer.Render("tab next · shift+tab back · ctrl+s send · esc back"))
	return b.String()
}

func (m Model) fieldView(i field) string {
	f := m.form
	switch i {
	case fieldName:
		return f.name.View() + m.counter(f.name.Value(), domain.MaxNameLength)
	case fieldMember:
		member := f.memberValue()
		if member == "" {
			return m.styles.Muted.Render("← pick a member →")
		}
		return "← " + string(member) + " →"
	case fieldMessage:
		view := f.message.View() + "\n" + m.styles.Label.Render("") +
			m.counter(f.message.Value(), domain.MaxMessageLength)
		if res := m.composer.CheckMessage(); res.HasMatch {
			view += "  " + m.styles.Error.Render("blocked: "+strings.Join(res.Matches, ", "))
		}
		return view
	case fieldCountry:
		return f.country.View() + m.counter(f.country.Value(), domain.MaxCountryLength)
	case fieldSong:
		return m.songView()
	}
	return ""
}

func (m Model) counter(value string, limit int) string {
	n := domain.CharCount(value)
	text := fmt.Sprintf(" %d/%d", n, limit)
	if n > limit {
		return m.styles.Error.Render(text)
	}
	return m.styles.Muted.Render(text)
}

func (m Model) songView() string {
	f := m.form
	var b strings.Builder
	b.WriteString(f.song.View())
	if t := m.composer.Selected(); t != nil {
		b.WriteString("\n" + m.styles.Label.Render("") +
			m.styles.Success.Render("♪ "+t.Name+" - "+strings.Join(t.ArtistNames(), ", ")))
	} else if m.composer.RequiresTrack() {
		b.WriteString("\n" + m.styles.Label.Render("") + m.styles.Muted.Render("A song is required."))
	}

	res := m.composer.Songs()
	switch {
	case res.Searching:
		b.WriteString("\n" + m.styles.Label.Render("") + m.spinner.View() + " Searching...")
	case res.Err != nil:
		b.WriteString("\n" + m.styles.Label.Render("") + m.styles.Muted.Render("Song search is unavailable."))
	case res.Query != "" && len(res.Tracks) == 0:
		b.WriteString("\n" + m.styles.Label.Render("") + m.styles.Muted.Render("No songs found."))
	}
	for i, t := range res.Tracks {
		line := t.Name + " - " + strings.Join(t.ArtistNames(), ", ")
		if i == f.songIdx && f.focus == fieldSong {
			line = m.styles.Focused.UnsetWidth().Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString("\n" + m.styles.Label.Render("") + line)
	}
	return b.String()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
