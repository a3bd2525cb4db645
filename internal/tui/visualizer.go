// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"strings"
	"time"

	"pulse/internal/analysis"
	"pulse/internal/render"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
)

// VisualizerOptions configures the terminal bar view.
type VisualizerOptions struct {
	Bars        int
	FPS         int
	MaxFraction float64
	MinFraction float64
	// Status, when set, is shown under the bars on every frame.
	Status func() string
	// StatusOnly shows the status line alone and schedules no frames, for
	// runs where there is nothing to draw.
	StatusOnly bool
}

// VisualizerModel draws the latest snapshot as bars of block characters,
// using the same geometry as the PNG rasterizer with one cell per pixel.
type VisualizerModel struct {
	source analysis.SnapshotProvider
	opts   VisualizerOptions

	snap   analysis.Snapshot
	layout *render.Layout
	bars   []render.Bar
	width  int
	height int
}

type frameMsg time.Time

// NewVisualizerModel polls source at opts.FPS.
func NewVisualizerModel(source analysis.SnapshotProvider, opts VisualizerOptions) VisualizerModel {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.MaxFraction <= 0 {
		opts.MaxFraction = 0.75
	}
	return VisualizerModel{
		source: source,
		opts:   opts,
		snap:   make(analysis.Snapshot, source.Bins()),
	}
}

func (m VisualizerModel) frame() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m VisualizerModel) Init() tea.Cmd {
	if m.opts.StatusOnly {
		return nil
	}
	return m.frame()
}

func (m VisualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Two rows are kept for the status line.
		l, err := render.NewLayout(m.opts.Bars, len(m.snap), msg.Width, msg.Height-2,
			m.opts.MaxFraction, m.opts.MinFraction)
		if err == nil {
			m.layout = l
			m.width, m.height = msg.Width, msg.Height-2
		}

	case frameMsg:
		if m.opts.StatusOnly {
			return m, nil
		}
		m.source.LatestInto(m.snap)
		if m.layout != nil {
			m.bars = m.layout.Layout(m.snap, m.bars)
		}
		return m, m.frame()

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View fills a cell when its centre lies inside a bar rectangle.
func (m VisualizerModel) View() string {
	if m.opts.StatusOnly {
		if m.opts.Status == nil {
			return ""
		}
		return statusStyle.Render(m.opts.Status()) + "\n"
	}
	if m.layout == nil {
		return "Waiting for terminal size..."
	}

	var sb strings.Builder
	row := make([]rune, m.width)
	for y := 0; y < m.height; y++ {
		cy := float64(y) + 0.5
		for x := range row {
			row[x] = ' '
		}
		for _, b := range m.bars {
			if cy < b.Top || cy >= b.Top+b.Height {
				continue
			}
			for x := range row {
				cx := float64(x) + 0.5
				if cx >= b.X-b.Width/2 && cx < b.X+b.Width/2 {
					row[x] = '█'
				}
			}
		}
		sb.WriteString(barStyle.Render(string(row)))
		sb.WriteByte('\n')
	}
	if m.opts.Status != nil {
		sb.WriteString(statusStyle.Render(m.opts.Status()))
	}
	return sb.String()
}

// RunVisualizer shows the bar view until the user quits or ctx is done.
func RunVisualizer(ctx context.Context, source analysis.SnapshotProvider, opts VisualizerOptions) error {
	_, err := tea.NewProgram(
		NewVisualizerModel(source, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
