package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	pickerTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pickerSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pickerDimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pickerOfflineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// pickerModel is a minimal arrow-key device chooser.
type pickerModel struct {
	devices []adbDevice
	cursor  int
	chosen  string
	spin    spinner.Model
	quit    bool
}

func newPickerModel(devices []adbDevice) pickerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return pickerModel{devices: devices, spin: sp}
}

func (m pickerModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quit = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.devices)-1 {
				m.cursor++
			}
		case "enter":
			if m.devices[m.cursor].State == "device" {
				m.chosen = m.devices[m.cursor].Serial
				return m, tea.Quit
			}
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen != "" || m.quit {
		return ""
	}

	s := pickerTitleStyle.Render("Select a device") + "\n\n"
	for i, d := range m.devices {
		label := d.Serial
		if d.Alias != "" {
			label = fmt.Sprintf("%s (%s)", d.Alias, d.Serial)
		} else if d.Model != "" {
			label = fmt.Sprintf("%s (%s)", d.Model, d.Serial)
		}

		line := "  " + label
		switch {
		case d.State != "device":
			line = pickerOfflineStyle.Render(line + "  [" + d.State + "]")
		case i == m.cursor:
			line = pickerSelectedStyle.Render("> " + label)
		}
		s += line + "\n"
	}
	s += "\n" + pickerDimStyle.Render(m.spin.View()+"↑/↓ move · enter select · q quit") + "\n"
	return s
}

// pickDevice runs the interactive chooser and returns the chosen serial.
func pickDevice(devices []adbDevice) (string, error) {
	final, err := tea.NewProgram(newPickerModel(devices)).Run()
	if err != nil {
		return "", err
	}
	m := final.(pickerModel)
	if m.chosen == "" {
		return "", fmt.Errorf("no device selected")
	}
	return m.chosen, nil
}
