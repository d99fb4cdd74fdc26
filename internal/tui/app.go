// Package tui is a terminal status view over the offline recipe collection.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/offline"
	"github.com/mmcdole/brewsync/internal/tui/styles"
)

const (
	tickInterval  = time.Second
	statusTimeout = 4 * time.Second
)

// RecipeSource is the part of the offline collection the view drives.
type RecipeSource interface {
	Items() []domain.CachedEntity[domain.Recipe]
	PendingCount() int
	LastSync() (time.Time, bool)
	Sync(ctx context.Context) (*domain.SyncResult, error)
	Refresh(ctx context.Context) (offline.RefreshResult, error)
}

// row is one visible recipe and the name offsets that matched the filter.
type row struct {
	index   int
	matched []int
}

// recipeNames implements fuzzy.Source over the loaded recipes
type recipeNames []domain.CachedEntity[domain.Recipe]

func (r recipeNames) String(i int) string { return r[i].Data.Name }
func (r recipeNames) Len() int            { return len(r) }

// Model is the Bubble Tea model for the status view
type Model struct {
	ctx     context.Context
	src     RecipeSource
	network domain.NetworkMonitor
	events  <-chan domain.SyncEvent
	keys    KeyMap

	spinner   spinner.Model
	filter    textinput.Model
	filtering bool

	items   []domain.CachedEntity[domain.Recipe]
	visible []row
	cursor  int

	width, height int
	online        bool
	pending       int
	lastSync      time.Time
	syncing       bool
	status        string
	statusErr     bool
}

// NewModel creates the status view. events may be nil.
func NewModel(ctx context.Context, src RecipeSource, network domain.NetworkMonitor, events <-chan domain.SyncEvent) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	ti := textinput.New()
	ti.Prompt = styles.FilterPromptStyle.Render("/ ")
	ti.Placeholder = "filter recipes"

	m := Model{
		ctx:     ctx,
		src:     src,
		network: network,
		events:  events,
		keys:    DefaultKeyMap(),
		spinner: sp,
		filter:  ti,
	}
	m.poll()
	return m
}

// Init starts the tick loop and the event listener
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		TickCmd(tickInterval),
		ListenCmd(m.events),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		m.poll()
		return m, TickCmd(tickInterval)

	case SyncEventMsg:
		cmd := m.handleSyncEvent(msg.Event)
		return m, tea.Batch(cmd, ListenCmd(m.events))

	case SyncDoneMsg:
		m.syncing = false
		m.poll()
		return m, m.setStatus(summarize(msg.Result), !msg.Result.Success)

	case RefreshedMsg:
		m.syncing = false
		m.poll()
		if msg.Result.FromCache {
			return m, m.setStatus(fmt.Sprintf("showing cached data: %v", msg.Result.Cause), true)
		}
		return m, m.setStatus(fmt.Sprintf("refreshed %d recipes", msg.Result.Count), false)

	case ErrMsg:
		m.syncing = false
		return m, m.setStatus(msg.Error(), true)

	case ClearStatusMsg:
		m.status = ""
		m.statusErr = false
		return m, nil
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.Type {
		case tea.KeyEsc:
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.applyFilter()
			return m, nil
		case tea.KeyEnter:
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(msg, m.keys.Escape):
		m.filter.SetValue("")
		m.applyFilter()
	case key.Matches(msg, m.keys.Sync):
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		return m, tea.Batch(m.spinner.Tick, SyncCmd(m.ctx, m.src))
	case key.Matches(msg, m.keys.Refresh):
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		return m, tea.Batch(m.spinner.Tick, RefreshCmd(m.ctx, m.src))
	}
	return m, nil
}

func (m *Model) handleSyncEvent(ev domain.SyncEvent) tea.Cmd {
	switch {
	case ev.State == domain.SyncDraining && ev.Operation == nil:
		if m.syncing {
			return nil
		}
		m.syncing = true
		return m.spinner.Tick
	case ev.State == domain.SyncIdle:
		m.syncing = false
		m.poll()
		if ev.Result != nil && ev.Trigger != domain.TriggerManual {
			return m.setStatus(fmt.Sprintf("%s sync: %s", ev.Trigger, summarize(ev.Result)), !ev.Result.Success)
		}
	}
	return nil
}

// poll reloads everything the view shows from its sources.
func (m *Model) poll() {
	m.online = m.network.CurrentState().Online()
	m.pending = m.src.PendingCount()
	if t, ok := m.src.LastSync(); ok {
		m.lastSync = t
	}
	m.items = m.src.Items()
	m.applyFilter()
}

func (m *Model) applyFilter() {
	query := strings.TrimSpace(m.filter.Value())
	visible := make([]row, 0, len(m.items))
	if query == "" {
		for i := range m.items {
			visible = append(visible, row{index: i})
		}
	} else {
		for _, match := range fuzzy.FindFrom(query, recipeNames(m.items)) {
			visible = append(visible, row{index: match.Index, matched: match.MatchedIndexes})
		}
	}
	m.visible = visible
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.status = text
	m.statusErr = isErr
	return ClearStatusCmd(statusTimeout)
}

func summarize(res *domain.SyncResult) string {
	if res == nil {
		return "nothing to sync"
	}
	s := fmt.Sprintf("%d sent", res.Processed)
	if res.Retried > 0 {
		s += fmt.Sprintf(", %d retrying", res.Retried)
	}
	if res.Failed > 0 {
		s += fmt.Sprintf(", %d failed", res.Failed)
	}
	if res.Conflicts > 0 {
		s += fmt.Sprintf(", %d conflicts", res.Conflicts)
	}
	return s
}

// View renders the status view
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(styles.ListStyle.Render(m.renderList()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	conn := styles.ErrorStyle.Render("● offline")
	if m.online {
		conn = styles.SuccessStyle.Render("● online")
	}
	last := "never"
	if !m.lastSync.IsZero() {
		last = m.lastSync.Local().Format("Jan 2 15:04")
	}
	parts := []string{
		styles.TitleStyle.Render("brewsync"),
		conn,
		fmt.Sprintf("pending %d", m.pending),
		"last sync " + last,
	}
	return styles.HeaderStyle.Render(strings.Join(parts, "  "))
}

func (m Model) renderList() string {
	if len(m.visible) == 0 {
		if len(m.items) == 0 {
			return styles.DimStyle.Render("no recipes")
		}
		return styles.DimStyle.Render("no matches")
	}

	height := len(m.visible)
	if m.height > 6 {
		height = min(height, m.height-6)
	}
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}

	width := 40
	if m.width > 20 {
		width = m.width - 20
	}

	lines := make([]string, 0, height)
	for i := start; i < start+height && i < len(m.visible); i++ {
		r := m.visible[i]
		e := m.items[r.index]
		name := styles.Highlight(styles.Truncate(e.Data.Name, width), r.matched)
		line := styles.RenderSyncStatus(e.SyncStatus) + " " + name
		if e.Data.Style != "" {
			line += " " + styles.DimStyle.Render(e.Data.Style)
		}
		if i == m.cursor {
			line = styles.SelectedItemStyle.Render(line)
		} else {
			line = styles.NormalItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.syncing:
		left = m.spinner.View() + " syncing"
	case m.status != "" && m.statusErr:
		left = styles.ErrorStyle.Render(m.status)
	case m.status != "":
		left = m.status
	default:
		help := make([]string, 0, len(m.keys.ShortHelp()))
		for _, k := range m.keys.ShortHelp() {
			h := k.Help()
			help = append(help, styles.HelpKeyStyle.Render(h.Key)+" "+styles.HelpDescStyle.Render(h.Desc))
		}
		left = strings.Join(help, "  ")
	}
	return styles.StatusBarStyle.Render(left)
}
