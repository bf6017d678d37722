package tui

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcdonaldj/flatarc/internal/archive"
	"github.com/mcdonaldj/flatarc/internal/fsmeta"
	"github.com/mcdonaldj/flatarc/internal/units"
)

// Archive is the set of archive operations the browser uses.
type Archive interface {
	Scan(ctx context.Context) ([]archive.Entry, error)
	Extract(ctx context.Context, target string) (archive.ExtractResult, error)
	Compact(ctx context.Context) (archive.CompactResult, error)
	Verify(ctx context.Context) (archive.VerifyReport, error)
}

// View represents the current view state
type View int

const (
	RecordsView View = iota
	DetailView
)

// Model is the main TUI model
type Model struct {
	ctx        context.Context
	arc        Archive
	path       string
	timeFormat string

	view     View
	width    int
	height   int
	quitting bool

	// All records in file order, deleted ones included
	entries     []archive.Entry
	showDeleted bool
	cursor      int

	// Set while an archive operation runs
	busy bool

	// Status message
	statusMsg  string
	statusKind statusKind
}

type statusKind int

const (
	statusOK statusKind = iota
	statusWarn
	statusErr
)

// Key bindings
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Extract key.Binding
	Compact key.Binding
	Verify  key.Binding
	Raw     key.Binding
	Reload  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "details"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Extract: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "extract"),
	),
	Compact: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "compact"),
	),
	Verify: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "verify"),
	),
	Raw: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "show deleted"),
	),
	Reload: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "reload"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a browser for arc and loads its records.
func NewModel(ctx context.Context, arc Archive, path, timeFormat string) (*Model, error) {
	m := newModel(ctx, arc, path, timeFormat)
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func newModel(ctx context.Context, arc Archive, path, timeFormat string) *Model {
	if timeFormat == "" {
		timeFormat = time.DateTime
	}
	return &Model{
		ctx:        ctx,
		arc:        arc,
		path:       path,
		timeFormat: timeFormat,
		view:       RecordsView,
	}
}

// reload re-reads every record and keeps the cursor in range.
func (m *Model) reload() error {
	entries, err := m.arc.Scan(m.ctx)
	if err != nil {
		return err
	}
	m.entries = entries
	m.clampCursor()
	return nil
}

// rows returns the records shown in the list.
func (m *Model) rows() []archive.Entry {
	if m.showDeleted {
		return m.entries
	}
	visible := make([]archive.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.Deleted {
			visible = append(visible, e)
		}
	}
	return visible
}

func (m *Model) selected() (archive.Entry, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return archive.Entry{}, false
	}
	return rows[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.rows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.busy = false
		m.statusMsg = msg.msg
		m.statusKind = msg.kind
		// Reload data to reflect changes
		if err := m.reload(); err != nil {
			m.statusMsg = fmt.Sprintf("Reload failed: %v", err)
			m.statusKind = statusErr
		}
		if m.view == DetailView {
			if _, ok := m.selected(); !ok {
				m.view = RecordsView
			}
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}

		// Clear status on any key
		m.statusMsg = ""
		m.statusKind = statusOK

		switch {
		case key.Matches(msg, keys.Up):
			if m.view == RecordsView {
				m.cursor--
				m.clampCursor()
			}

		case key.Matches(msg, keys.Down):
			if m.view == RecordsView {
				m.cursor++
				m.clampCursor()
			}

		case key.Matches(msg, keys.Enter):
			if _, ok := m.selected(); ok {
				m.view = DetailView
			}

		case key.Matches(msg, keys.Back):
			m.view = RecordsView

		case key.Matches(msg, keys.Raw):
			m.showDeleted = !m.showDeleted
			m.cursor = 0
			m.view = RecordsView

		case key.Matches(msg, keys.Reload):
			if err := m.reload(); err != nil {
				m.statusMsg = fmt.Sprintf("Reload failed: %v", err)
				m.statusKind = statusErr
			}

		case key.Matches(msg, keys.Extract):
			e, ok := m.selected()
			if !ok {
				return m, nil
			}
			if e.Deleted {
				m.statusMsg = "Record is already deleted"
				m.statusKind = statusWarn
				return m, nil
			}
			m.busy = true
			return m, m.runExtract(e.Path)

		case key.Matches(msg, keys.Compact):
			m.busy = true
			return m, m.runCompact()

		case key.Matches(msg, keys.Verify):
			m.busy = true
			return m, m.runVerify()
		}
	}

	return m, nil
}

type statusMsg struct {
	msg  string
	kind statusKind
}

func failed(action string, err error) statusMsg {
	return statusMsg{kind: statusErr, msg: fmt.Sprintf("%s failed: %v", action, err)}
}

func (m *Model) runExtract(target string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.arc.Extract(m.ctx, target)
		switch {
		case errors.Is(err, archive.ErrTooLarge):
			return statusMsg{kind: statusWarn, msg: fmt.Sprintf("%s is above the extract size limit", target)}
		case err != nil:
			return failed("Extract", err)
		case !res.Found:
			return statusMsg{kind: statusWarn, msg: fmt.Sprintf("%s not found", target)}
		}

		msg := fmt.Sprintf("✓ Extracted %s (%s)", target, units.FormatSize(res.Entry.Meta.Size))
		if len(res.Warnings) > 0 {
			parts := make([]string, 0, len(res.Warnings))
			for _, w := range res.Warnings {
				parts = append(parts, w.String())
			}
			return statusMsg{kind: statusWarn, msg: msg + "; " + strings.Join(parts, "; ")}
		}
		return statusMsg{msg: msg}
	}
}

func (m *Model) runCompact() tea.Cmd {
	return func() tea.Msg {
		res, err := m.arc.Compact(m.ctx)
		if err != nil {
			return failed("Compact", err)
		}
		return statusMsg{msg: fmt.Sprintf("✓ Compacted: %d dropped, reclaimed %s",
			res.Dropped, units.FormatSize(res.Reclaimed()))}
	}
}

func (m *Model) runVerify() tea.Cmd {
	return func() tea.Msg {
		report, err := m.arc.Verify(m.ctx)
		if err != nil {
			return failed("Verify", err)
		}
		if !report.OK() {
			names := make([]string, 0, len(report.Mismatched))
			for _, e := range report.Mismatched {
				names = append(names, e.Path)
			}
			return statusMsg{kind: statusErr, msg: "✗ Checksum mismatch: " + strings.Join(names, ", ")}
		}
		return statusMsg{msg: fmt.Sprintf("✓ %d records verified", report.Checked)}
	}
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case RecordsView:
		content = m.renderRecordsView()
	case DetailView:
		content = m.renderDetailView()
	}

	return appStyle.Render(content)
}

func (m *Model) renderRecordsView() string {
	var b strings.Builder

	// Title
	title := " 📦 " + m.path + " "
	if m.showDeleted {
		title += "(all records) "
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	rows := m.rows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  Archive is empty"))
		b.WriteString("\n")
	} else {
		// Header
		header := fmt.Sprintf("  %-40s %10s %-10s %s", "NAME", "SIZE", "MODE", "MODIFIED")
		b.WriteString(dimStyle.Render(header))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Repeat("─", 80)))
		b.WriteString("\n")
	}

	// List items
	visibleHeight := m.height - 10
	if visibleHeight < 5 {
		visibleHeight = 5
	}

	start := 0
	if m.cursor >= visibleHeight {
		start = m.cursor - visibleHeight + 1
	}

	for i := start; i < len(rows) && i < start+visibleHeight; i++ {
		e := rows[i]
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "▸ "
			style = selectedStyle
		}

		line := fmt.Sprintf("%-40s %10s %-10s %s",
			truncate(e.Path, 40),
			units.FormatSize(e.Meta.Size),
			fsmeta.FileMode(e.Meta.Mode),
			m.formatTime(e.Meta.MTime))
		if e.Deleted {
			b.WriteString(style.Render(cursor))
			b.WriteString(deletedStyle.Render(line))
		} else {
			b.WriteString(style.Render(cursor + line))
		}
		b.WriteString("\n")
	}

	// Pad to fixed height
	for i := len(rows); i < visibleHeight; i++ {
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus())

	// Help
	help := "[↑/↓] navigate  [enter] details  [e] extract  [c] compact  [v] verify  [r] deleted  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderDetailView() string {
	var b strings.Builder

	e, ok := m.selected()
	if !ok {
		return m.renderRecordsView()
	}

	title := titleStyle.Render(" 📄 " + e.Path + " ")
	b.WriteString(title)
	b.WriteString("\n\n")

	state := successBadge.Render("live")
	if e.Deleted {
		state = errorBadge.Render("deleted")
	}
	digest := dimStyle.Render("none")
	if e.HasDigest() {
		digest = hex.EncodeToString(e.Digest[:])
	}

	rows := [][2]string{
		{"State", state},
		{"Offset", fmt.Sprintf("%d", e.Offset)},
		{"Size", fmt.Sprintf("%s (%d bytes)", units.FormatSize(e.Meta.Size), e.Meta.Size)},
		{"Mode", fmt.Sprintf("%s (%04o)", fsmeta.FileMode(e.Meta.Mode), e.Meta.Mode&07777)},
		{"Owner", fmt.Sprintf("%d:%d", e.Meta.UID, e.Meta.GID)},
		{"Modified", m.formatTime(e.Meta.MTime)},
		{"Accessed", m.formatTime(e.Meta.ATime)},
		{"Changed", m.formatTime(e.Meta.CTime)},
		{"Inode", fmt.Sprintf("%d on device %d, %d links", e.Meta.Ino, e.Meta.Dev, e.Meta.Nlink)},
		{"BLAKE2b", digest},
	}
	for _, r := range rows {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), normalStyle.Render(r[1])))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderStatus())

	help := "[e] extract  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderStatus() string {
	var b strings.Builder
	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(dimStyle.Render("Working..."))
	case m.statusMsg == "":
	case m.statusKind == statusErr:
		b.WriteString(errorBadge.Render(m.statusMsg))
	case m.statusKind == statusWarn:
		b.WriteString(warnBadge.Render(m.statusMsg))
	default:
		b.WriteString(successBadge.Render(m.statusMsg))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(m.timeFormat)
}

// Run starts the TUI
func Run(ctx context.Context, arc Archive, path, timeFormat string) error {
	m, err := NewModel(ctx, arc, path, timeFormat)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Helper functions
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
