// Package settings is the host app's flag settings screen.
package settings

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/wilbur182/keyhost/internal/capability"
	"github.com/wilbur182/keyhost/internal/features"
	"github.com/wilbur182/keyhost/internal/keyboard"
	"github.com/wilbur182/keyhost/internal/sharedstore"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	onStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	offStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	statusStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#60A5FA"))
	sectionMargin = lipgloss.NewStyle().MarginTop(1)
)

// ChangedMsg is delivered when another process commits to the store.
type ChangedMsg struct {
	Change sharedstore.Change
}

// WaitForChange returns a command that blocks until the watcher reports a
// commit. The model re-arms it after every ChangedMsg. A nil watcher never
// fires.
func WaitForChange(w *sharedstore.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-w.Events()
		if !ok {
			return nil
		}
		return ChangedMsg{Change: c}
	}
}

// Model is the settings screen state.
type Model struct {
	flags   *features.Flags
	access  capability.Checker
	watcher *sharedstore.Watcher
	keys    KeyMap

	features []features.Feature
	values   map[features.Key]bool
	granted  bool
	cursor   int
	status   string
	width    int
	quitting bool
}

// New builds the screen. watcher may be nil.
func New(flags *features.Flags, access capability.Checker, watcher *sharedstore.Watcher) Model {
	m := Model{
		flags:    flags,
		access:   access,
		watcher:  watcher,
		keys:     DefaultKeyMap(),
		features: features.ListAll(),
	}
	m.refresh()
	return m
}

// Init starts listening for foreign writes.
func (m Model) Init() tea.Cmd {
	return WaitForChange(m.watcher)
}

// refresh re-reads every flag and the capability.
func (m *Model) refresh() {
	m.values = m.flags.List()
	m.granted = m.access.HasFullAccess()
}

// Values returns the flag values as last read.
func (m Model) Values() map[features.Key]bool {
	out := make(map[features.Key]bool, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Cursor returns the selected row.
func (m Model) Cursor() int {
	return m.cursor
}

// Granted reports the full access state as last read.
func (m Model) Granted() bool {
	return m.granted
}

// Status returns the status line.
func (m Model) Status() string {
	return m.status
}

// Update handles messages for the settings screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ChangedMsg:
		m.refresh()
		m.status = fmt.Sprintf("updated by %s", shortWriter(msg.Change.Writer))
		return m, WaitForChange(m.watcher)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.FocusMsg:
		m.access.Invalidate()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.features)-1 {
				m.cursor++
			}

		case key.Matches(msg, m.keys.Toggle):
			if len(m.features) == 0 {
				return m, nil
			}
			f := m.features[m.cursor]
			next := !m.values[f.Key]
			m.flags.SetEnabled(f.Key, next)
			m.refresh()
			m.status = fmt.Sprintf("%s set to %t", f.Key, next)

		case key.Matches(msg, m.keys.Reset):
			m.flags.ResetToDefaults()
			m.refresh()
			m.status = "reset to defaults"

		case key.Matches(msg, m.keys.Invalidate):
			m.access.Invalidate()
			m.refresh()
			m.status = "rechecked full access"
		}
	}
	return m, nil
}

// keyColumn is the display width of the flag key column.
const keyColumn = 16

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	lines := []string{titleStyle.Render("Keyboard settings"), ""}
	for i, f := range m.features {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		state := offStyle.Render("off")
		if m.values[f.Key] {
			state = onStyle.Render("on ")
		}
		def := "off"
		if f.Default {
			def = "on"
		}
		lines = append(lines, prefix+runewidth.FillRight(string(f.Key), keyColumn)+" "+state+"  "+
			mutedStyle.Render(fmt.Sprintf("%s (default %s)", f.Description, def)))
	}

	access := onStyle.Render("Full access: granted")
	if !m.granted {
		access = warningStyle.Render(keyboard.FullAccessMessage)
	}
	lines = append(lines, sectionMargin.Render(access))

	if m.status != "" {
		lines = append(lines, statusStyle.Render(m.status))
	}

	var help []string
	for _, k := range m.keys.help() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	lines = append(lines, sectionMargin.Render(mutedStyle.Render(strings.Join(help, " • "))))

	var b strings.Builder
	for _, block := range lines {
		for _, line := range strings.Split(block, "\n") {
			if m.width > 0 {
				line = ansi.Truncate(line, m.width, "…")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func shortWriter(id string) string {
	if id == "" {
		return "another process"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
