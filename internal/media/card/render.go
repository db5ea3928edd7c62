// Package card renders a letter as a shareable PNG image.
package card

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/armyletters/letters-server/internal/domain"
)

// Output size matches the Open Graph image size.
const (
	Width  = 1200
	Height = 630

	// Text is laid out on a half-size canvas and scaled up, since the
	// bitmap face is 7x13.
	scale   = 2
	canvasW = Width / scale
	canvasH = Height / scale

	margin     = 24
	lineHeight = 16
	glyphWidth = 7
)

var (
	ink      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	inkMuted = color.RGBA{R: 0xf3, G: 0xe8, B: 0xff, A: 0xff}
	panel    = color.RGBA{A: 0x33}
)

// Render draws the card for l.
func Render(l *domain.Letter) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: Background(l.ColorClass)}, image.Point{}, draw.Src)

	inner := image.Rect(margin/2, margin+lineHeight, canvasW-margin/2, canvasH-margin-lineHeight)
	draw.Draw(canvas, inner, &image.Uniform{C: panel}, image.Point{}, draw.Over)

	y := margin
	drawText(canvas, "Dear "+string(l.Member)+",", margin, y, ink)
	y += lineHeight + 8

	columns := (canvasW - 2*margin) / glyphWidth
	footerLines := 1
	if l.Track != nil {
		footerLines++
	}
	maxLines := (canvasH-y-margin)/lineHeight - footerLines - 1
	for _, line := range Wrap(l.Message, columns, maxLines) {
		y += lineHeight
		drawText(canvas, line, margin, y, ink)
	}

	y = canvasH - margin - (footerLines-1)*lineHeight
	drawText(canvas, signature(l), margin, y, inkMuted)
	if l.Track != nil {
		y += lineHeight
		drawText(canvas, fmt.Sprintf("Song: %s - %s", l.Track.Name, l.Track.Artist), margin, y, inkMuted)
	}

	out := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.NearestNeighbor.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return out
}

// RenderPNG renders the card and encodes it.
func RenderPNG(l *domain.Letter) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Render(l)); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name for a card.
func Filename(l *domain.Letter) string {
	return "letter-to-" + strings.ToLower(string(l.Member)) + ".png"
}

func signature(l *domain.Letter) string {
	if l.Country != "" {
		return fmt.Sprintf("With love, %s from %s", l.Name, l.Country)
	}
	return "With love, " + l.Name
}

func drawText(dst *image.RGBA, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// Wrap breaks text into at most maxLines lines of at most width characters.
// Words longer than a line are split. Overflow ends the last line with "...".
func Wrap(text string, width, maxLines int) []string {
	if width <= 0 || maxLines <= 0 {
		return nil
	}

	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		var line []rune
		for _, word := range strings.Fields(para) {
			w := []rune(word)
			for len(w) > width {
				if len(line) > 0 {
					lines = append(lines, string(line))
					line = nil
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			switch {
			case len(line) == 0:
				line = w
			case len(line)+1+len(w) <= width:
				line = append(append(line, ' '), w...)
			default:
				lines = append(lines, string(line))
				line = w
			}
		}
		lines = append(lines, string(line))
	}

	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	last := []rune(lines[maxLines-1])
	if utf8.RuneCountInString(lines[maxLines-1])+3 > width {
		last = last[:max(width-3, 0)]
	}
	lines[maxLines-1] = string(last) + "..."
	return lines
}
