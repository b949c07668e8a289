package indicator

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Terminal renders the light as a colored block on a terminal line.
type Terminal struct {
	w     io.Writer
	label string
}

func NewTerminal(w io.Writer, label string) *Terminal { return &Terminal{w: w, label: label} }

func (t *Terminal) Show(c Color) error {
	// Board levels top out near 25; scale up so the color is visible.
	scaled := Color{scale(c.R), scale(c.G), scale(c.B)}
	block := lipgloss.NewStyle().Background(lipgloss.Color(scaled.String())).Render("  ")
	_, err := fmt.Fprintf(t.w, "\r%s %s ", block, t.label)
	return err
}

func scale(v uint8) uint8 {
	n := int(v) * 10
	if n > 255 {
		n = 255
	}
	return uint8(n)
}
