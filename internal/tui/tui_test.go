// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"

	"pulse/internal/analysis"
	"pulse/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
)

func testDevices() ([]audio.Device, error) {
	return []audio.Device{
		{ID: 0, Name: "Built-in Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
		{ID: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		{ID: 2, Name: "USB Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100},
	}, nil
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) tea.Model {
	t.Helper()
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	return m
}

func loadedModel(t *testing.T) tea.Model {
	t.Helper()
	m := NewDeviceListModel(testDevices)
	msg := m.Init()()
	return send(t, m, tea.WindowSizeMsg{Width: 80, Height: 30}, msg)
}

func TestDeviceListShowsInputsOnly(t *testing.T) {
	m := loadedModel(t).(DeviceListModel)
	if len(m.devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(m.devices))
	}
	view := m.View()
	if !strings.Contains(view, "Built-in Mic") || !strings.Contains(view, "USB Interface") {
		t.Errorf("view missing inputs:\n%s", view)
	}
	if strings.Contains(view, "Speakers") {
		t.Errorf("view lists an output-only device:\n%s", view)
	}
}

func TestDeviceListSelection(t *testing.T) {
	m := send(t, loadedModel(t), keyMsg("down"), keyMsg("enter"), keyMsg("down"))

	dm := m.(DeviceListModel)
	if dm.activeScreen != ConfigScreen {
		t.Fatal("expected configuration screen")
	}
	if _, ok := dm.Selection(); ok {
		t.Fatal("selection set before confirming")
	}

	final, cmd := dm.Update(keyMsg("enter"))
	sel, ok := final.(DeviceListModel).Selection()
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.Device.Name != "USB Interface" || sel.SampleRate != 48000 {
		t.Errorf("selection = %+v", sel)
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("confirming should quit")
	}
}

func TestDeviceListBack(t *testing.T) {
	m := send(t, loadedModel(t), keyMsg("enter"), keyMsg("esc"))
	if m.(DeviceListModel).activeScreen != ListScreen {
		t.Error("esc should return to the list")
	}
}

func TestDeviceListQuit(t *testing.T) {
	_, cmd := loadedModel(t).Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestDeviceListError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) {
		return nil, errors.New("no host API")
	})
	got := send(t, m, m.Init()()).View()
	if !strings.Contains(got, "no host API") {
		t.Errorf("view = %q", got)
	}
}

func TestRateIndex(t *testing.T) {
	if got := SampleRates[rateIndex(48000)]; got != 48000 {
		t.Errorf("rate = %v, want 48000", got)
	}
	if got := SampleRates[rateIndex(12345)]; got != 44100 {
		t.Errorf("fallback rate = %v, want 44100", got)
	}
}

type fixedSource struct {
	snap analysis.Snapshot
}

func (s fixedSource) LatestInto(dst analysis.Snapshot) int { return copy(dst, s.snap) }
func (s fixedSource) Bins() int                            { return len(s.snap) }

func TestVisualizerDrawsBars(t *testing.T) {
	src := fixedSource{snap: analysis.Snapshot{255, 255, 255, 255, 255, 255, 255, 255}}
	m := NewVisualizerModel(src, VisualizerOptions{
		Bars:        5,
		FPS:         30,
		MaxFraction: 0.75,
		MinFraction: 0.05,
		Status:      func() string { return "queue: 0" },
	})
	if got := m.View(); !strings.Contains(got, "Waiting") {
		t.Errorf("view before size = %q", got)
	}

	next, cmd := m.Update(tea.WindowSizeMsg{Width: 60, Height: 22})
	next, cmd = next.Update(frameMsg{})
	if cmd == nil {
		t.Error("frame should schedule the next frame")
	}

	vm := next.(VisualizerModel)
	if len(vm.bars) != 5 {
		t.Fatalf("bars = %d, want 5", len(vm.bars))
	}
	view := vm.View()
	if !strings.Contains(view, "█") {
		t.Error("no bar cells drawn")
	}
	if !strings.Contains(view, "queue: 0") {
		t.Error("status line missing")
	}

	// Full-scale bars cover 15 of 20 rows.
	filled := 0
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "█") {
			filled++
		}
	}
	if filled != 15 {
		t.Errorf("filled rows = %d, want 15", filled)
	}
}

func TestVisualizerStatusOnly(t *testing.T) {
	src := fixedSource{snap: analysis.Snapshot{255, 255, 255, 255, 255, 255, 255, 255}}
	m := NewVisualizerModel(src, VisualizerOptions{
		Bars:       5,
		Status:     func() string { return "capture unavailable: permission denied" },
		StatusOnly: true,
	})
	if cmd := m.Init(); cmd != nil {
		t.Error("status-only view should not schedule frames")
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 22})
	next, cmd := next.Update(frameMsg{})
	if cmd != nil {
		t.Error("frame in status-only view should not schedule another")
	}
	if vm := next.(VisualizerModel); len(vm.bars) != 0 {
		t.Errorf("bars = %d, want none", len(vm.bars))
	}

	view := next.View()
	if strings.Contains(view, "█") {
		t.Error("bar cells drawn in status-only view")
	}
	if !strings.Contains(view, "capture unavailable") {
		t.Errorf("view = %q, want the status line", view)
	}

	_, cmd = next.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should still quit")
	}
}

func TestVisualizerQuit(t *testing.T) {
	m := NewVisualizerModel(fixedSource{snap: make(analysis.Snapshot, 8)}, VisualizerOptions{Bars: 5})
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
