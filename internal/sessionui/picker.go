package sessionui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// deviceItem adapts a canonical id to bubbles/list's list.Item
// interface, the same list widget the teacher's pipeline picker
// (internal/cli/ui PipelineSelectView) uses for a scrollable menu.
type deviceItem string

func (d deviceItem) Title() string       { return string(d) }
func (d deviceItem) Description() string { return "" }
func (d deviceItem) FilterValue() string { return string(d) }

type pickerModel struct {
	list     list.Model
	chosen   string
	quit     bool
}

func newPickerModel(canonicalIDs []string) pickerModel {
	items := make([]list.Item, len(canonicalIDs))
	for i, id := range canonicalIDs {
		items[i] = deviceItem(id)
	}
	l := list.New(items, list.NewDefaultDelegate(), 60, 16)
	l.Title = "Select a device"
	l.Styles.Title = lipgloss.NewStyle().Bold(true)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				m.chosen = string(item)
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return m.list.View()
}

// PickDevice runs an interactive list picker over canonicalIDs and
// returns the chosen id, or an error if the user quit without
// choosing one.
func PickDevice(canonicalIDs []string) (string, error) {
	if len(canonicalIDs) == 0 {
		return "", fmt.Errorf("sessionui: no devices to pick from")
	}
	p := tea.NewProgram(newPickerModel(canonicalIDs))
	result, err := p.Run()
	if err != nil {
		return "", err
	}
	final := result.(pickerModel)
	if final.quit && final.chosen == "" {
		return "", fmt.Errorf("sessionui: device selection cancelled")
	}
	return final.chosen, nil
}
