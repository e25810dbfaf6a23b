// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"fractalwave/internal/analysis"
	"fractalwave/internal/audio"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 50 * time.Millisecond
	seekStep        = 5 * time.Second
	meterWidth      = 40
)

var (
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7A7A7A"))
	meterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
)

// Player is the engine surface the UI reads and drives directly.
type Player interface {
	State() audio.State
	CurrentTrackPath() string
	CurrentPosition() time.Duration
	TrackLength() time.Duration
	StreamRate() int
	Seek(pos time.Duration)
	Bands() []float32
	VisualizationActive() bool
	OutputDevice() int
	SetOutputDevice(id int) error
}

// Controls is the media controller surface.
type Controls interface {
	TogglePause() bool
	Next() bool
	Previous() bool
	ToggleVisualizer()
	VisualizerPending() bool
	LastError() string
	Queue() []string
	Index() int
}

type keyMap struct {
	Pause      key.Binding
	Back       key.Binding
	Forward    key.Binding
	Next       key.Binding
	Previous   key.Binding
	Visualizer key.Binding
	Devices    key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Back, k.Forward, k.Next, k.Previous, k.Visualizer, k.Devices, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Pause:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	Back:       key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "-5s")),
	Forward:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "+5s")),
	Next:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
	Previous:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
	Visualizer: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "visualizer")),
	Devices:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "devices")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type screen int

const (
	playerScreen screen = iota
	devicesScreen
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the player screen. Task runner signals reach it through the
// Poster and run inside Update.
type Model struct {
	player  Player
	ctl     Controls
	poster  *Poster
	keys    keyMap
	help    help.Model
	devices DeviceListModel
	screen  screen
	width   int
	height  int
	status  string
}

func NewModel(player Player, ctl Controls, poster *Poster) Model {
	return Model{
		player: player,
		ctl:    ctl,
		poster: poster,
		keys:   defaultKeys,
		help:   help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case drainMsg:
		if m.poster != nil {
			m.poster.Drain()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		if m.screen == devicesScreen {
			return m.updateDevices(msg)
		}
		return m, nil

	case DeviceSelectedMsg:
		m.screen = playerScreen
		if err := m.player.SetOutputDevice(msg.Device.ID); err != nil {
			m.status = err.Error()
		} else {
			m.status = "output: " + msg.Device.Name
		}
		return m, nil

	case closeDevicesMsg:
		m.screen = playerScreen
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.screen == devicesScreen {
			return m.updateDevices(msg)
		}
		return m.handleKey(msg)
	}

	if m.screen == devicesScreen {
		return m.updateDevices(msg)
	}
	return m, nil
}

func (m Model) updateDevices(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.devices, cmd = m.devices.update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch {
	case key.Matches(msg, m.keys.Pause):
		if !m.ctl.TogglePause() {
			m.status = "nothing to play"
		}

	case key.Matches(msg, m.keys.Back):
		m.player.Seek(max(m.player.CurrentPosition()-seekStep, 0))

	case key.Matches(msg, m.keys.Forward):
		m.player.Seek(m.player.CurrentPosition() + seekStep)

	case key.Matches(msg, m.keys.Next):
		if !m.ctl.Next() {
			m.status = "end of queue"
		}

	case key.Matches(msg, m.keys.Previous):
		m.ctl.Previous()

	case key.Matches(msg, m.keys.Visualizer):
		m.ctl.ToggleVisualizer()

	case key.Matches(msg, m.keys.Devices):
		m.screen = devicesScreen
		m.devices = NewDeviceListModel(m.player.OutputDevice())
		m.devices.embedded = true
		var cmd tea.Cmd
		if m.width > 0 {
			m.devices, cmd = m.devices.update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
		}
		return m, tea.Batch(cmd, m.devices.Init())
	}
	return m, nil
}

func (m Model) View() string {
	if m.screen == devicesScreen {
		return m.devices.View()
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("fractalwave"))
	sb.WriteString("\n\n")

	path := m.player.CurrentTrackPath()
	if path == "" {
		sb.WriteString(dimStyle.Render("Nothing loaded"))
	} else {
		state := m.player.State()
		fmt.Fprintf(&sb, "%s %s\n", highlightStyle.Render(stateIcon(state)), filepath.Base(path))
		pos, length := m.player.CurrentPosition(), m.player.TrackLength()
		fmt.Fprintf(&sb, "%s %s / %s  %s",
			progressBar(pos, length, meterWidth),
			formatDuration(pos), formatDuration(length),
			dimStyle.Render(fmt.Sprintf("%d Hz", m.player.StreamRate())))
	}
	sb.WriteString("\n")

	if q := m.ctl.Queue(); len(q) > 0 {
		fmt.Fprintf(&sb, "%s\n", dimStyle.Render(fmt.Sprintf("track %d of %d", m.ctl.Index()+1, len(q))))
	}
	sb.WriteString("\n")

	switch {
	case m.ctl.VisualizerPending():
		sb.WriteString(infoStyle.Render("Starting visualizer..."))
		sb.WriteString("\n")
	case m.player.VisualizationActive():
		sb.WriteString(renderMeters(m.player.Bands(), meterWidth))
	default:
		sb.WriteString(dimStyle.Render("Analysis off (v to enable)"))
		sb.WriteString("\n")
	}

	if err := m.ctl.LastError(); err != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(err))
		sb.WriteString("\n")
	}
	if m.status != "" {
		sb.WriteString("\n")
		sb.WriteString(infoStyle.Render(m.status))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func stateIcon(s audio.State) string {
	if s == audio.StatePlaying {
		return "▶"
	}
	return "■"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func progressBar(pos, length time.Duration, width int) string {
	filled := 0
	if length > 0 {
		filled = int(float64(width) * float64(min(pos, length)) / float64(length))
	}
	return meterStyle.Render(strings.Repeat("━", filled)) + dimStyle.Render(strings.Repeat("─", width-filled))
}

// renderMeters draws one row per band, scaled to the loudest band of the
// frame on a dB axis spanning 60 dB.
func renderMeters(bands []float32, width int) string {
	var peak float32
	for _, v := range bands {
		peak = max(peak, v)
	}
	ranges := analysis.DefaultBands()

	var sb strings.Builder
	for i, v := range bands {
		n := 0
		if peak > 0 && v > 0 {
			db := 20 * math.Log10(float64(v/peak))
			n = int(math.Round(float64(width) * max(0, 1+db/60)))
		}
		label := fmt.Sprintf("%2d", i)
		if i < len(ranges) {
			label = fmt.Sprintf("%5.0f Hz", ranges[i].Min)
		}
		fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render(label), meterStyle.Render(strings.Repeat("█", n)))
	}
	return sb.String()
}

// Run starts the player UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m.poster != nil {
		go m.poster.Forward(fctx, p)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
