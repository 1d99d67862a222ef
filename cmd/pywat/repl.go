package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chazu/pywat/compiler"
	"github.com/chazu/pywat/session"
)

var (
	accentColor    = lipgloss.Color("#3B82F6")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#F59E0B")

	promptStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

const (
	primaryPrompt      = ">>> "
	continuationPrompt = "... "
)

var replKeywords = []string{
	"class", "def", "if", "elif", "else", "return", "pass", "print",
	"True", "False", "None", "not", "is", "int", "bool", "object", "self",
}

type historyEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	textInput  textinput.Model
	session    *session.Session
	opts       session.Options
	pending    []string // lines of an unfinished block
	history    []historyEntry
	cmdHistory []string
	historyIdx int
	lastWAT    string
	width      int
	height     int
	showHelp   bool
	showEnv    bool
	showWAT    bool
	quitting   bool

	initialized bool
}

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	CtrlC key.Binding
	CtrlD key.Binding
	CtrlL key.Binding
	Tab   key.Binding
	CtrlE key.Binding
	CtrlK key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous input"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "next input"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "execute"),
	),
	CtrlC: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	CtrlD: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "quit"),
	),
	CtrlL: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "autocomplete"),
	),
	CtrlE: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "toggle env"),
	),
	CtrlK: key.NewBinding(
		key.WithKeys("ctrl+k"),
		key.WithHelp("ctrl+k", "toggle help"),
	),
}

func newREPLModel(s *session.Session, opts session.Options) replModel {
	ti := textinput.New()
	ti.Placeholder = "x:int = 1, then x + 1"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	ti.PromptStyle = promptStyle
	ti.Prompt = primaryPrompt

	return replModel{
		textInput:  ti,
		session:    s,
		opts:       opts,
		historyIdx: -1,
	}
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.CtrlC), key.Matches(msg, keys.CtrlD):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.CtrlL):
			m.history = nil
			return m, nil

		case key.Matches(msg, keys.CtrlE):
			m.showEnv = !m.showEnv
			return m, nil

		case key.Matches(msg, keys.CtrlK):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keys.Up):
			if len(m.cmdHistory) > 0 {
				if m.historyIdx == -1 {
					m.historyIdx = len(m.cmdHistory) - 1
				} else if m.historyIdx > 0 {
					m.historyIdx--
				}
				m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.historyIdx != -1 {
				if m.historyIdx < len(m.cmdHistory)-1 {
					m.historyIdx++
					m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				} else {
					m.historyIdx = -1
					m.textInput.SetValue("")
				}
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Tab):
			m = m.handleAutocomplete()
			return m, nil

		case key.Matches(msg, keys.Enter):
			return m.handleEnter()
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// handleEnter runs a complete input. A line ending in ":" opens a block
// that collects lines until an empty one.
func (m replModel) handleEnter() (tea.Model, tea.Cmd) {
	line := strings.TrimRight(m.textInput.Value(), " \t")
	trimmed := strings.TrimSpace(line)
	m.textInput.SetValue("")
	m.historyIdx = -1

	if len(m.pending) > 0 {
		if trimmed != "" {
			m.pending = append(m.pending, line)
			return m, nil
		}
		src := strings.Join(m.pending, "\n")
		m.pending = nil
		m.textInput.Prompt = primaryPrompt
		m = m.run(src)
		return m, nil
	}

	if trimmed == "" {
		return m, nil
	}
	if strings.HasPrefix(trimmed, ":") {
		return m.handleCommand(trimmed)
	}
	if strings.HasSuffix(trimmed, ":") {
		m.pending = []string{line}
		m.textInput.Prompt = continuationPrompt
		return m, nil
	}
	m = m.run(line)
	return m, nil
}

func (m replModel) run(src string) replModel {
	output, isErr := m.evaluate(src)
	m.history = append(m.history, historyEntry{
		input:  src,
		output: output,
		isErr:  isErr,
	})
	m.cmdHistory = append(m.cmdHistory, src)
	return m
}

func (m *replModel) evaluate(src string) (string, bool) {
	src += "\n"
	res, err := m.session.Eval(src)
	var rerr *session.RuntimeError
	switch {
	case errors.As(err, &rerr):
		return rerr.Output + err.Error(), true
	case err != nil:
		return compiler.Render(err, src), true
	}

	m.lastWAT = res.WAT
	out := res.Output
	if res.Type.Kind != compiler.TypeNone {
		out += res.Display
	}
	return strings.TrimRight(out, "\n"), false
}

func (m replModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	report := func(output string, isErr bool) {
		m.history = append(m.history, historyEntry{input: input, output: output, isErr: isErr})
	}

	switch cmd {
	case ":help", ":h":
		m.showHelp = !m.showHelp
	case ":clear", ":c":
		m.history = nil
	case ":env", ":e":
		m.showEnv = !m.showEnv
	case ":wat", ":w":
		m.showWAT = !m.showWAT
	case ":reset", ":r":
		m.session.Reset()
		m.lastWAT = ""
		report("Environment reset", false)
	case ":history":
		limit := 10
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				report(fmt.Sprintf("bad count %q", arg), true)
				return m, nil
			}
			limit = n
		}
		entries, err := m.session.History(limit)
		if err != nil {
			report(err.Error(), true)
			return m, nil
		}
		report(formatHistory(entries), false)
	case ":save":
		if arg == "" {
			report("usage: :save file", true)
			return m, nil
		}
		data, err := session.MarshalImage(m.session.Image())
		if err == nil {
			err = os.WriteFile(arg, data, 0o644)
		}
		if err != nil {
			report(err.Error(), true)
			return m, nil
		}
		report("Saved session to "+arg, false)
	case ":load":
		if arg == "" {
			report("usage: :load file", true)
			return m, nil
		}
		s, err := loadImage(arg, m.opts)
		if err != nil {
			report(err.Error(), true)
			return m, nil
		}
		m.session = s
		report("Loaded session from "+arg, false)
	case ":quit", ":q":
		m.quitting = true
		return m, tea.Quit
	default:
		report(fmt.Sprintf("Unknown command: %s", cmd), true)
	}
	return m, nil
}

func loadImage(path string, opts session.Options) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := session.UnmarshalImage(data)
	if err != nil {
		return nil, err
	}
	return session.FromImage(img, opts)
}

func formatHistory(entries []session.Entry) string {
	if len(entries) == 0 {
		return "No history"
	}
	var lines []string
	for _, e := range entries {
		result := e.Display
		if e.Error != "" {
			result = "error"
		}
		src := strings.ReplaceAll(strings.TrimSpace(e.Source), "\n", "⏎")
		lines = append(lines, fmt.Sprintf("%4d  %s  → %s", e.ID, src, result))
	}
	return strings.Join(lines, "\n")
}

func (m replModel) handleAutocomplete() replModel {
	input := m.textInput.Value()
	if input == "" {
		return m
	}

	// Get the last word for completion
	words := strings.FieldsFunc(input, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if len(words) == 0 || !strings.HasSuffix(input, words[len(words)-1]) {
		return m
	}
	lastWord := words[len(words)-1]

	var completions []string
	candidates := append([]string(nil), replKeywords...)
	env := m.session.Env()
	candidates = append(candidates, env.GlobalNames()...)
	candidates = append(candidates, env.ClassNames()...)
	candidates = append(candidates, env.FuncNames()...)
	for _, c := range candidates {
		if strings.HasPrefix(c, lastWord) {
			completions = append(completions, c)
		}
	}

	if len(completions) == 1 {
		// Single match - complete it
		prefix := strings.TrimSuffix(input, lastWord)
		m.textInput.SetValue(prefix + completions[0])
		m.textInput.CursorEnd()
	} else if len(completions) > 1 {
		// Multiple matches - show them in history
		m.history = append(m.history, historyEntry{
			output: "Completions: " + strings.Join(completions, ", "),
		})
	}

	return m
}

func (m replModel) View() string {
	if !m.initialized {
		return "Loading..."
	}

	if m.quitting {
		return mutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder

	header := headerStyle.Render("pywat REPL")
	version := mutedStyle.Render("v0.1.0")
	b.WriteString(header + " " + version + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", min(m.width-2, 60))) + "\n\n")

	reservedLines := 8 // header, input, help hint, etc.
	if m.showHelp {
		reservedLines += 14
	}
	if m.showEnv {
		env := m.session.Env()
		reservedLines += len(env.Types) + len(env.Classes) + len(env.Funcs) + 3
	}
	availableHeight := max(m.height-reservedLines, 1)

	historyStart := 0
	if len(m.history) > availableHeight {
		historyStart = len(m.history) - availableHeight
	}

	for i := historyStart; i < len(m.history); i++ {
		entry := m.history[i]
		if entry.input != "" {
			for j, line := range strings.Split(entry.input, "\n") {
				marker := "  › "
				if j > 0 {
					marker = "  … "
				}
				b.WriteString(mutedStyle.Render(marker) + line + "\n")
			}
		}
		if entry.isErr {
			b.WriteString(errorStyle.Render(indent("✗ "+entry.output)) + "\n")
		} else if entry.output != "" {
			b.WriteString(resultStyle.Render(indent("→ "+entry.output)) + "\n")
		}
		b.WriteString("\n")
	}

	for _, line := range m.pending {
		b.WriteString(mutedStyle.Render("  … ") + line + "\n")
	}

	if m.showEnv {
		b.WriteString(renderEnvPanel(m.session.Env()))
		b.WriteString("\n")
	}

	if m.showWAT && m.lastWAT != "" {
		b.WriteString(borderStyle.Render(strings.TrimRight(m.lastWAT, "\n")))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(renderHelpPanel())
		b.WriteString("\n")
	}

	b.WriteString(m.textInput.View() + "\n\n")

	footer := helpKeyStyle.Render("ctrl+k") + helpDescStyle.Render(" help  ") +
		helpKeyStyle.Render("ctrl+e") + helpDescStyle.Render(" env  ") +
		helpKeyStyle.Render("ctrl+l") + helpDescStyle.Render(" clear  ") +
		helpKeyStyle.Render("ctrl+c") + helpDescStyle.Render(" quit")
	b.WriteString(footer)

	return b.String()
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n    ")
}

func renderEnvPanel(env *compiler.GlobalEnv) string {
	if len(env.Types) == 0 && len(env.Classes) == 0 && len(env.Funcs) == 0 {
		return borderStyle.Render(mutedStyle.Render("Nothing defined"))
	}

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Environment"))
	nameStyle := lipgloss.NewStyle().Foreground(highlightColor)
	for _, name := range env.ClassNames() {
		cls := env.Classes[name]
		var members []string
		for _, f := range cls.Fields {
			members = append(members, fmt.Sprintf("%s:%s", f.Name, f.Type))
		}
		for _, m := range cls.MethodNames() {
			members = append(members, m+"()")
		}
		lines = append(lines, fmt.Sprintf("  class %s(%s)", nameStyle.Render(name), strings.Join(members, ", ")))
	}
	for _, name := range env.FuncNames() {
		sig := env.Funcs[name]
		params := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = fmt.Sprintf("%s:%s", p.Name, p.Type)
		}
		lines = append(lines, fmt.Sprintf("  def %s(%s) -> %s", nameStyle.Render(name), strings.Join(params, ", "), sig.Return))
	}
	for _, name := range env.GlobalNames() {
		lines = append(lines, fmt.Sprintf("  %s: %s @%d", nameStyle.Render(name), env.Types[name], env.Offsets[name]))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

func renderHelpPanel() string {
	help := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "Navigate input history"},
		{"Tab", "Autocomplete"},
		{"Enter", "Execute; a line ending in ':' opens a block closed by an empty line"},
		{":help", "Toggle this help"},
		{":env", "Toggle environment panel"},
		{":wat", "Toggle the WAT of the last input"},
		{":history", "Show recorded inputs"},
		{":save", "Save the session to a file"},
		{":load", "Load a saved session"},
		{":clear", "Clear the screen"},
		{":reset", "Reset environment"},
		{":quit", "Exit REPL"},
	}

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Help"))
	for _, h := range help {
		line := fmt.Sprintf("  %s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-9s", h.key)),
			helpDescStyle.Render(h.desc))
		lines = append(lines, line)
	}

	return borderStyle.Render(strings.Join(lines, "\n"))
}

func runREPL(s *session.Session, opts session.Options) error {
	p := tea.NewProgram(newREPLModel(s, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
