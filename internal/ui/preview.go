package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/petr-muller/escalations/internal/escalation"
)

const maxVisibleRows = 15

// Row is a fetched work item with the decisions the monitor would make about it
type Row struct {
	Line    escalation.Line
	Match   escalation.Match
	Matched bool
	New     bool
	Age     time.Duration
}

// Status is a short label of what the monitor would do with the item
func (r Row) Status() string {
	switch {
	case !r.New:
		return "skip"
	case !r.Matched:
		return "unmatched"
	case r.Match.Category.Webhook == "":
		return "no webhook"
	default:
		return "alert"
	}
}

// BuildRows evaluates items against the monitor's novelty state and classifier
// without changing either
func BuildRows(monitor *escalation.Monitor, fields escalation.FieldMap, items []escalation.WorkItem, now time.Time) []Row {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		row := Row{
			Line: monitor.Renderer().Line(item),
			New:  monitor.Tracker().IsNew(item),
		}
		row.Match, row.Matched = monitor.Classifier().Match(item)
		if created, ok := escalation.ParseTimestamp(item.Field(fields.CreatedDate)); ok {
			row.Age = now.Sub(created)
		}
		rows = append(rows, row)
	}
	return rows
}

// Loader fetches the rows to preview
type Loader func(ctx context.Context) ([]Row, error)

type loadedMsg struct {
	rows []Row
	err  error
}

// Model is the interactive dry-run view of a saved query
type Model struct {
	ctx     context.Context
	load    Loader
	title   string
	spinner spinner.Model
	table   table.Model
	rows    []Row
	loading bool
	err     error
	width   int
}

// NewModel creates a preview that loads its rows on start
func NewModel(ctx context.Context, title string, load Loader) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	t := table.New(
		table.WithColumns(columns(0)),
		table.WithFocused(true),
		table.WithHeight(2),
	)

	return Model{
		ctx:     ctx,
		load:    load,
		title:   title,
		spinner: s,
		table:   t,
		loading: true,
	}
}

// Init starts loading
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m Model) fetch() tea.Msg {
	rows, err := m.load(m.ctx)
	return loadedMsg{rows: rows, err: err}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(columns(m.width))
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.fetch)
			}
		}
	case loadedMsg:
		m.loading = false
		m.err = msg.err
		m.rows = msg.rows
		m.updateTable()
		return m, nil
	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	m.updateSelectionStyle()
	return m, cmd
}

// View renders the model
func (m Model) View() string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)
	s.WriteString(headerStyle.Render(m.title))
	s.WriteString("\n")

	if m.loading {
		s.WriteString(m.spinner.View() + " Fetching work items...\n")
		return s.String()
	}
	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		s.WriteString(errStyle.Render(fmt.Sprintf("Fetch failed: %v", m.err)))
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("Press 'r' to retry, 'q' to quit"))
		return s.String()
	}

	s.WriteString(infoStyle.Render(summarize(m.rows)))
	s.WriteString("\n\n")
	s.WriteString(m.table.View())
	s.WriteString("\n")

	if len(m.rows) > maxVisibleRows {
		s.WriteString(infoStyle.Italic(true).Render(fmt.Sprintf("Showing %d of %d items - use arrow keys to scroll", maxVisibleRows, len(m.rows))))
		s.WriteString("\n")
	}

	if cursor := m.table.Cursor(); cursor >= 0 && cursor < len(m.rows) {
		s.WriteString(detail(m.rows[cursor]))
	}

	s.WriteString(helpStyle.Render("Press 'r' to reload, 'q' to quit, arrow keys to navigate"))
	return s.String()
}

var (
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

func summarize(rows []Row) string {
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.Status()]++
	}
	return fmt.Sprintf("%d items: %d alert, %d no webhook, %d unmatched, %d skipped",
		len(rows), counts["alert"], counts["no webhook"], counts["unmatched"], counts["skip"])
}

func detail(row Row) string {
	var s strings.Builder
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250")).MarginTop(1)
	s.WriteString(titleStyle.Render(row.Line.Title))
	s.WriteString("\n")
	if row.Matched {
		s.WriteString(fmt.Sprintf("Matched %s by %s keyword %q\n", row.Match.Category.Title(), row.Match.Rule, row.Match.Keyword))
	}
	s.WriteString(infoStyle.Render(row.Line.URL))
	s.WriteString("\n")
	return s.String()
}

func columns(width int) []table.Column {
	cols := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Ticket", Width: 10},
		{Title: "Customer", Width: 20},
		{Title: "State", Width: 12},
		{Title: "Severity", Width: 10},
		{Title: "Category", Width: 12},
		{Title: "Age", Width: 6},
		{Title: "Action", Width: 10},
	}
	// customer takes whatever width is left
	if width > 0 {
		used := 0
		for _, col := range cols {
			used += col.Width + 2
		}
		if extra := width - used - 4; extra > 0 {
			cols[2].Width += extra
		}
	}
	return cols
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.rows))
	for _, row := range m.rows {
		category := "-"
		if row.Matched {
			category = row.Match.Category.Name
		}
		age := "-"
		if row.Age > 0 {
			age = formatDuration(row.Age)
		}
		severity := row.Line.Marker
		if severity == "" {
			severity = "-"
		}
		rows = append(rows, table.Row{
			fmt.Sprint(row.Line.ID),
			row.Line.TicketNumber,
			row.Line.Customer,
			row.Line.State,
			severity,
			category,
			age,
			row.Status(),
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(min(len(rows), maxVisibleRows) + 1)
	m.updateSelectionStyle()
}

// updateSelectionStyle colors the selected row by what the monitor would do with it
func (m *Model) updateSelectionStyle() {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.rows) {
		return
	}

	var background lipgloss.Color
	switch m.rows[cursor].Status() {
	case "alert":
		background = lipgloss.Color("22")
	case "no webhook", "unmatched":
		background = lipgloss.Color("130")
	default:
		background = lipgloss.Color("240")
	}

	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("230")).
		Background(background).
		Bold(true)
	m.table.SetStyles(styles)
}
