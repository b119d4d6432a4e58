package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lunamoth/tidesync/internal/matcher"
	"github.com/lunamoth/tidesync/internal/services"
)

var _ list.Item = candidateItem{}

// candidateItem wraps a [matcher.Candidate] to implement [list.Item].
type candidateItem struct {
	candidate matcher.Candidate
}

func (i candidateItem) FilterValue() string { return i.candidate.Track.Title }
func (i candidateItem) Title() string       { return i.candidate.Track.Title }
func (i candidateItem) Description() string {
	t := i.candidate.Track
	desc := t.Artist
	if t.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, t.Album)
	}
	return fmt.Sprintf("%s • %s %.0f%%", desc, i.candidate.Method, i.candidate.Confidence*100)
}

// Picker implements tasks.Resolver by running an interactive candidate
// chooser in the terminal.
type Picker struct{}

// NewPicker creates a new interactive candidate picker.
func NewPicker() *Picker {
	return &Picker{}
}

// Resolve shows the candidates for a source track and returns the user's
// choice. A nil candidate means the user skipped the track.
func (p *Picker) Resolve(ctx context.Context, source services.Track, candidates []matcher.Candidate) (*matcher.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	m := newPickerModel(source, candidates)
	program := tea.NewProgram(m, tea.WithContext(ctx))

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("candidate picker failed: %w", err)
	}

	result, ok := final.(*pickerModel)
	if !ok {
		return nil, nil
	}
	if result.aborted {
		return nil, context.Canceled
	}
	return result.chosen, nil
}

// pickerModel is the bubbletea model for the candidate chooser.
type pickerModel struct {
	source  services.Track
	list    list.Model
	chosen  *matcher.Candidate
	aborted bool
	help    help.Model
	keys    keyMap
	width   int
	height  int
}

func newPickerModel(source services.Track, candidates []matcher.Candidate) *pickerModel {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = candidateItem{candidate: c}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Pick a match for: %s - %s", source.Artist, source.Title)
	l.Styles.Title = styles.title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return &pickerModel{
		source: source,
		list:   l,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		case "s":
			m.chosen = nil
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(candidateItem); ok {
				c := item.candidate
				m.chosen = &c
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *pickerModel) View() string {
	helpView := styles.help.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	return fmt.Sprintf("%s\n\n%s", m.list.View(), helpView)
}
