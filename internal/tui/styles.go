package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/armyletters/letters-server/internal/media/card"
)

// Palette colours.
var (
	Purple   = lipgloss.Color("#8E44AD")
	Ink      = lipgloss.Color("#2B2233")
	Paper    = lipgloss.Color("#F4F0F8")
	Muted    = lipgloss.Color("#8C7FA0")
	Danger   = lipgloss.Color("#CF6679")
	Positive = lipgloss.Color("#8BC34A")
)

// Styles holds the styled components of the feed.
type Styles struct {
	Header   lipgloss.Style
	Footer   lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Label    lipgloss.Style
	Focused  lipgloss.Style
	Card     lipgloss.Style
	Selected lipgloss.Style
	Overlay  lipgloss.Style
}

// DefaultStyles returns the purple theme.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Background(Purple).
			Foreground(Paper).
			Padding(0, 1).
			Bold(true),
		Footer: lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 1),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Error:   lipgloss.NewStyle().Foreground(Danger).Bold(true),
		Success: lipgloss.NewStyle().Foreground(Positive).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(Muted).Width(10),
		Focused: lipgloss.NewStyle().Foreground(Purple).Bold(true).Width(10),
		Card: lipgloss.NewStyle().
			Foreground(Ink).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()),
		Selected: lipgloss.NewStyle().
			Foreground(Ink).
			Padding(0, 1).
			Border(lipgloss.ThickBorder()),
		Overlay: lipgloss.NewStyle().
			Foreground(Ink).
			Background(Paper).
			Padding(1, 2).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Purple),
	}
}

// CardStyle colours base with a letter's card class.
func (s Styles) CardStyle(colorClass string, selected bool) lipgloss.Style {
	base := s.Card
	if selected {
		base = s.Selected
	}
	bg := lipgloss.Color(card.Hex(colorClass))
	if selected {
		return base.Background(bg).BorderForeground(Purple)
	}
	return base.Background(bg).BorderForeground(bg)
}
