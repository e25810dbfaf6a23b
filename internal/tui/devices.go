// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"fractalwave/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0605A"))
)

// ScreenType defines which device screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// listDevices is swapped out by tests.
var listDevices = audio.OutputDevices

// DeviceSelectedMsg is emitted when the user confirms a device.
type DeviceSelectedMsg struct {
	Device audio.Device
}

// closeDevicesMsg asks the parent model to leave the device screen.
type closeDevicesMsg struct{}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// DeviceListModel lists output devices and lets the user pick one. Embedded
// in the player it hands quitting to the parent; standalone it quits itself.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	current       int // device in use, -1 for host default
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	embedded      bool
	chosen        *audio.Device
}

// NewDeviceListModel creates a new device list model. current marks the
// device already in use.
func NewDeviceListModel(current int) DeviceListModel {
	return DeviceListModel{
		current:      current,
		activeScreen: ListScreen,
	}
}

// Init initializes the Bubble Tea model
func (m DeviceListModel) Init() tea.Cmd {
	return fetchDevices
}

// fetchDevices gets the available output devices
func fetchDevices() tea.Msg {
	devices, err := listDevices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

// Chosen returns the device confirmed in a standalone run.
func (m DeviceListModel) Chosen() (audio.Device, bool) {
	if m.chosen == nil {
		return audio.Device{}, false
	}
	return *m.chosen, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	return next, cmd
}

func (m DeviceListModel) update(msg tea.Msg) (DeviceListModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = 0
		for i, d := range m.devices {
			if d.ID == m.current || (m.current < 0 && d.Default) {
				m.selectedIndex = i
				break
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if !m.embedded && key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				if m.embedded {
					return m, func() tea.Msg { return closeDevicesMsg{} }
				}
				return m, tea.Quit

			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.refresh()
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.refresh()
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.refresh()
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				m.activeScreen = ListScreen
				m.refresh()

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				device := m.devices[m.selectedIndex]
				m.current = device.ID
				m.activeScreen = ListScreen
				m.refresh()
				if !m.embedded {
					m.chosen = &device
					return m, tea.Quit
				}
				return m, func() tea.Msg { return DeviceSelectedMsg{Device: device} }
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\nPress esc to go back."
	}

	var title, help string

	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Output Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Select • Esc: Back")
	} else {
		title = titleStyle.Render("Output Device")
		help = infoStyle.Render("Enter: Use this device • Esc: Back")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		var tags []string
		if device.Default {
			tags = append(tags, "default")
		}
		if device.ID == m.current {
			tags = append(tags, "in use")
		}

		deviceInfo := fmt.Sprintf("[%d] %s", device.ID, device.Name)
		if len(tags) > 0 {
			deviceInfo += " (" + strings.Join(tags, ", ") + ")"
		}
		deviceInfo += fmt.Sprintf("\n    %s • %d channels • %.0f Hz\n",
			device.HostAPI, device.MaxOutputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDeviceConfig shows the details of the selected device
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "%s\n\n", highlightStyle.Render(device.Name))
	fmt.Fprintf(&sb, "  Host API:            %s\n", device.HostAPI)
	fmt.Fprintf(&sb, "  Output channels:     %d\n", device.MaxOutputChannels)
	fmt.Fprintf(&sb, "  Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
	fmt.Fprintf(&sb, "  Latency (low/high):  %s / %s\n", device.LowLatency, device.HighLatency)

	return sb.String()
}

// RunDevicePicker runs the device list on its own and returns the device the
// user confirmed, if any.
func RunDevicePicker(current int) (audio.Device, bool, error) {
	p := tea.NewProgram(
		NewDeviceListModel(current),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return audio.Device{}, false, err
	}
	device, ok := final.(DeviceListModel).Chosen()
	return device, ok, nil
}
