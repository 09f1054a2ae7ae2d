// Package tui is a terminal front end over an in-process state core.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// Pane identifies which list has keyboard focus.
type Pane int

const (
	PaneWorkspaces Pane = iota
	PaneMemories
)

const defaultRefresh = 50 * time.Millisecond

// Messages
type tickMsg time.Time

type switchedMsg struct {
	id  string
	err error
}

type embeddedMsg struct {
	id  string
	err error
}

var sortCycle = []models.SortMode{models.SortRecent, models.SortTitle, models.SortRelevance}

// Model is the root Bubble Tea model
type Model struct {
	ctx  context.Context
	app  *app.App
	keys KeyMap

	help   help.Model
	search textinput.Model
	bar    progress.Model

	width  int
	height int

	focus      Pane
	wsCursor   int
	memCursor  int
	showDetail bool

	status string
	err    error
}

func NewModel(ctx context.Context, a *app.App) Model {
	ti := textinput.New()
	ti.Placeholder = "search memories"
	ti.Prompt = "/ "
	ti.CharLimit = 120
	ti.SetValue(a.Memories.SearchQuery())

	bar := progress.New(progress.WithGradient(string(ColorMagenta), string(ColorBlue)), progress.WithoutPercentage())
	bar.Width = 40

	m := Model{
		ctx:    ctx,
		app:    a,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		search: ti,
		bar:    bar,
		focus:  PaneWorkspaces,
	}
	if id := a.Workspaces.ActiveWorkspaceID(); id != "" {
		for i, ws := range a.Workspaces.Workspaces() {
			if ws.ID == id {
				m.wsCursor = i
			}
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	every := m.app.Config.Transition.Interval
	if every <= 0 {
		every = defaultRefresh
	}
	return tea.Tick(every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(10, msg.Width/2)
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.clampCursors()
		return m, m.tick()

	case switchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if ws, ok := m.app.Workspaces.WorkspaceByID(msg.id); ok {
			m.status = "switching to " + ws.Name
		}
		m.memCursor = 0
		return m, nil

	case embeddedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = "re-embedded " + msg.id
		return m, nil

	case tea.KeyMsg:
		if m.search.Focused() {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Enter) {
		m.search.Blur()
		m.focus = PaneMemories
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.app.Memories.SetSearchQuery(m.search.Value())
	m.memCursor = 0
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Focus):
		if m.focus == PaneWorkspaces {
			m.focus = PaneMemories
		} else {
			m.focus = PaneWorkspaces
		}

	case key.Matches(msg, m.keys.Search):
		m.focus = PaneMemories
		m.showDetail = false
		return m, m.search.Focus()

	case key.Matches(msg, m.keys.Sort):
		next := sortCycle[0]
		for i, mode := range sortCycle {
			if mode == m.app.Memories.SortBy() {
				next = sortCycle[(i+1)%len(sortCycle)]
			}
		}
		if err := m.app.Memories.SetSortBy(next); err != nil {
			m.err = err
		}
		m.memCursor = 0

	case key.Matches(msg, m.keys.Up):
		m.move(-1)

	case key.Matches(msg, m.keys.Down):
		m.move(1)

	case key.Matches(msg, m.keys.Enter):
		return m.activate()

	case key.Matches(msg, m.keys.Escape):
		if m.showDetail {
			m.showDetail = false
			m.app.Memories.SetSelectedMemory("")
		}

	case key.Matches(msg, m.keys.Embed):
		if mem, ok := m.currentMemory(); ok {
			return m, m.reembed(mem.ID)
		}
	}
	return m, nil
}

func (m *Model) move(delta int) {
	if m.focus == PaneWorkspaces {
		m.wsCursor += delta
	} else {
		m.memCursor += delta
	}
	m.clampCursors()
}

func (m *Model) clampCursors() {
	clamp := func(v, n int) int {
		if v >= n {
			v = n - 1
		}
		if v < 0 {
			v = 0
		}
		return v
	}
	m.wsCursor = clamp(m.wsCursor, len(m.app.Workspaces.Workspaces()))
	m.memCursor = clamp(m.memCursor, len(m.visibleMemories()))
}

func (m Model) activate() (tea.Model, tea.Cmd) {
	if m.focus == PaneWorkspaces {
		ws := m.app.Workspaces.Workspaces()
		if m.wsCursor >= len(ws) {
			return m, nil
		}
		return m, m.switchTo(ws[m.wsCursor].ID)
	}
	mem, ok := m.currentMemory()
	if !ok {
		return m, nil
	}
	if err := m.app.Memories.SetSelectedMemory(mem.ID); err != nil {
		m.err = err
		return m, nil
	}
	m.showDetail = true
	return m, nil
}

func (m Model) switchTo(id string) tea.Cmd {
	ctx, a := m.ctx, m.app
	return func() tea.Msg {
		return switchedMsg{id: id, err: a.SwitchWorkspace(ctx, id)}
	}
}

func (m Model) reembed(id string) tea.Cmd {
	ctx, a := m.ctx, m.app
	return func() tea.Msg {
		return embeddedMsg{id: id, err: a.Memories.ReEmbedMemory(ctx, id)}
	}
}

func (m Model) visibleMemories() []models.Memory {
	id := m.app.Workspaces.ActiveWorkspaceID()
	if id == "" {
		return nil
	}
	return m.app.Memories.FilteredMemories(id)
}

func (m Model) currentMemory() (models.Memory, bool) {
	mems := m.visibleMemories()
	if m.memCursor < 0 || m.memCursor >= len(mems) {
		return models.Memory{}, false
	}
	return mems[m.memCursor], true
}

// --- View ---

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if tr := m.app.Workspaces.Transition(); tr.IsTransitioning {
		target := tr.TargetWorkspaceID
		if ws, ok := m.app.Workspaces.WorkspaceByID(target); ok {
			target = ws.Name
		}
		b.WriteString(fmt.Sprintf(" Switching to %s  %s %3.0f%%\n", target, m.bar.ViewAs(tr.Progress/100), tr.Progress))
	}

	left := m.renderWorkspaces()
	right := m.renderMemories()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")

	if m.showDetail {
		if mem, ok := m.app.Memories.SelectedMemory(); ok {
			b.WriteString(m.renderDetail(mem))
			b.WriteString("\n")
		}
	}

	if m.err != nil {
		b.WriteString(ErrorStyle.Render(" " + m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(StatusBarStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(StatusBarStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return b.String()
}

func (m Model) renderHeader() string {
	name := "no workspace"
	if ws, ok := m.app.Workspaces.ActiveWorkspace(); ok {
		name = ws.Name
	}
	var names []string
	for _, cm := range m.app.Integrations.ConnectedModels() {
		names = append(names, cm.DisplayName)
	}
	modelsLine := MutedStyle.Render("no models connected")
	if len(names) > 0 {
		modelsLine = ModelStyle.Render(strings.Join(names, " · "))
	}
	return HeaderStyle.Render("CHIMERA · "+name) + "  " + modelsLine
}

func (m Model) renderWorkspaces() string {
	var b strings.Builder
	b.WriteString(PaneTitleStyle.Render("Workspaces"))
	b.WriteString("\n")
	active := m.app.Workspaces.ActiveWorkspaceID()
	for i, ws := range m.app.Workspaces.Workspaces() {
		marker := "  "
		if ws.ID == active {
			marker = ActiveMarkerStyle.Render("● ")
		}
		style := ItemStyle
		if i == m.wsCursor && m.focus == PaneWorkspaces {
			style = SelectedItemStyle
		}
		b.WriteString(marker + style.Render(ws.Name) + "\n")
	}

	pane := PaneStyle
	if m.focus == PaneWorkspaces && !m.search.Focused() {
		pane = FocusedPaneStyle
	}
	return pane.Width(m.paneWidth(1)).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderMemories() string {
	var b strings.Builder
	b.WriteString(PaneTitleStyle.Render("Memories"))
	b.WriteString(MutedStyle.Render(" · sort: " + string(m.app.Memories.SortBy())))
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n")

	mems := m.visibleMemories()
	if len(mems) == 0 {
		b.WriteString(MutedStyle.Render("no memories"))
	}
	for i, mem := range mems {
		style := ItemStyle
		if i == m.memCursor && m.focus == PaneMemories {
			style = SelectedItemStyle
		}
		line := style.Render(mem.Title)
		if len(mem.Tags) > 0 {
			line += " " + TagStyle.Render("#"+strings.Join(mem.Tags, " #"))
		}
		if len(mem.Embedding) > 0 {
			line += MutedStyle.Render(" ◆")
		}
		b.WriteString(line + "\n")
	}

	pane := PaneStyle
	if m.focus == PaneMemories || m.search.Focused() {
		pane = FocusedPaneStyle
	}
	return pane.Width(m.paneWidth(2)).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderDetail(mem models.Memory) string {
	body := PaneTitleStyle.Render(mem.Title) + "\n" +
		ItemStyle.Render(mem.Content) + "\n" +
		MutedStyle.Render(fmt.Sprintf("v%d · updated %s", mem.Version, mem.UpdatedAt.Format(time.DateTime)))
	return FocusedPaneStyle.Width(m.paneWidth(3)).Render(body)
}

// paneWidth returns the width of a pane spanning thirds of the terminal.
// Before the first WindowSizeMsg panes size to their content.
func (m Model) paneWidth(thirds int) int {
	if m.width == 0 {
		return 0
	}
	return m.width*thirds/3 - 2
}
