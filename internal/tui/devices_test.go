// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"testing"
	"time"

	"fractalwave/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOutputDevices() []audio.Device {
	return []audio.Device{
		{ID: 1, Name: "Speakers", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 48000, LowLatency: 5 * time.Millisecond, HighLatency: 20 * time.Millisecond, Default: true},
		{ID: 4, Name: "HDMI", HostAPI: "Core Audio", MaxOutputChannels: 8, DefaultSampleRate: 44100},
	}
}

func mockListDevices(t *testing.T, devices []audio.Device, err error) {
	t.Helper()
	orig := listDevices
	listDevices = func() ([]audio.Device, error) { return devices, err }
	t.Cleanup(func() { listDevices = orig })
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loadedDeviceModel(t *testing.T, current int, embedded bool) DeviceListModel {
	t.Helper()
	mockListDevices(t, fakeOutputDevices(), nil)
	m := NewDeviceListModel(current)
	m.embedded = embedded
	m, _ = m.update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.update(m.Init()())
	return m
}

func TestDeviceListSelectsCurrentDevice(t *testing.T) {
	m := loadedDeviceModel(t, 4, true)
	assert.Equal(t, 1, m.selectedIndex)

	m = loadedDeviceModel(t, -1, true)
	assert.Equal(t, 0, m.selectedIndex, "host default is preselected")

	view := m.View()
	assert.Contains(t, view, "Output Devices")
	assert.Contains(t, view, "[1] Speakers (default)")
	assert.Contains(t, view, "[4] HDMI")
}

func TestDeviceListNavigateAndSelect(t *testing.T) {
	m := loadedDeviceModel(t, 1, true)

	m, _ = m.update(keyPress("down"))
	m, _ = m.update(keyPress("down"))
	assert.Equal(t, 1, m.selectedIndex, "selection stops at the last device")

	m, _ = m.update(keyPress("enter"))
	assert.Equal(t, ConfigScreen, m.activeScreen)
	assert.Contains(t, m.View(), "Default sample rate: 44100 Hz")

	m, _ = m.update(keyPress("esc"))
	assert.Equal(t, ListScreen, m.activeScreen)

	m, _ = m.update(keyPress("enter"))
	m, cmd := m.update(keyPress("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, DeviceSelectedMsg{Device: fakeOutputDevices()[1]}, cmd())
	assert.Equal(t, 4, m.current)
	assert.Equal(t, ListScreen, m.activeScreen)
}

func TestDeviceListEmbeddedEscClosesScreen(t *testing.T) {
	m := loadedDeviceModel(t, 1, true)
	_, cmd := m.update(keyPress("esc"))
	require.NotNil(t, cmd)
	assert.Equal(t, closeDevicesMsg{}, cmd())
}

func TestDeviceListStandaloneChoice(t *testing.T) {
	m := loadedDeviceModel(t, -1, false)
	_, ok := m.Chosen()
	assert.False(t, ok)

	m, _ = m.update(keyPress("enter"))
	m, cmd := m.update(keyPress("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	device, ok := m.Chosen()
	require.True(t, ok)
	assert.Equal(t, "Speakers", device.Name)
}

func TestDeviceListError(t *testing.T) {
	mockListDevices(t, nil, errors.New("portaudio not initialized"))
	m := NewDeviceListModel(-1)
	m, _ = m.update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.update(m.Init()())
	assert.Contains(t, m.View(), "portaudio not initialized")
}

func TestDeviceListEmpty(t *testing.T) {
	mockListDevices(t, nil, nil)
	m := NewDeviceListModel(-1)
	assert.Equal(t, "Initializing...", m.View())
	m, _ = m.update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.update(m.Init()())
	assert.Contains(t, m.View(), "No output devices found.")

	m, _ = m.update(keyPress("enter"))
	assert.Equal(t, ListScreen, m.activeScreen)
}
