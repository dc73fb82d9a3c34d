package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ScanProgress renders the progress of a running channel scan: a bar for
// the frequency sweep plus a found-channels counter.
type ScanProgress struct {
	Source  string  // Source being scanned, e.g. "Antenna"
	Percent float64 // Sweep progress (0.0 - 1.0)
	Found   int     // Programs found so far
	Width   int     // Terminal width

	bar progress.Model
}

// NewScanProgress creates a progress display for a channel scan
func NewScanProgress(source string) *ScanProgress {
	width := GetTerminalWidth()
	barWidth := width - 24 // Leave room for percentage and found count
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	return &ScanProgress{
		Source: source,
		Width:  width,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
		),
	}
}

// Update records the latest poll results
func (p *ScanProgress) Update(percent int, found int) {
	p.Percent = float64(percent) / 100
	if p.Percent > 1 {
		p.Percent = 1
	}
	p.Found = found
}

// Render returns the progress line as a string
func (p *ScanProgress) Render() string {
	barView := p.bar.ViewAs(p.Percent)
	percentStr := fmt.Sprintf("%3.0f%%", p.Percent*100)
	foundStr := fmt.Sprintf("%d found", p.Found)

	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %s  %s", barView, percentStr,
			TroubleshootingItemStyle.Render(foundStr)))
}

// String implements fmt.Stringer
func (p *ScanProgress) String() string {
	return p.Render()
}
