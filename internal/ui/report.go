package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/petr-muller/escalations/internal/escalation"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// Banner describes what a monitor watches
type Banner struct {
	Organization string
	Project      string
	QueryID      string
	Categories   []escalation.Category
	Mode         string
}

// Render returns the banner as a bordered box
func (b Banner) Render() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Escalation monitor"))
	s.WriteString("\n")
	fmt.Fprintf(&s, "Project:  %s/%s\n", b.Organization, b.Project)
	fmt.Fprintf(&s, "Query:    %s\n", b.QueryID)
	fmt.Fprintf(&s, "Mode:     %s\n", b.Mode)
	s.WriteString("Services:")
	for _, category := range b.Categories {
		status := okStyle.Render("webhook")
		if category.Webhook == "" {
			status = warnStyle.Render("no webhook")
		}
		fmt.Fprintf(&s, "\n  %-12s %-7s %s", category.Title(), category.Policy, status)
	}
	return bannerStyle.Render(s.String())
}

// RenderReport returns a multi-line summary of a cycle
func RenderReport(report escalation.CycleReport) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render(fmt.Sprintf("Cycle %d", report.Cycle)))
	fmt.Fprintf(&s, " %s (%s)\n", report.Started.Format(escalation.ReportTimeLayout), report.Duration.Round(time.Millisecond))

	if report.FetchError != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("Nothing to process: %v", report.FetchError)))
		s.WriteString("\n")
		return s.String()
	}

	fmt.Fprintf(&s, "Fetched:     %d\n", report.Fetched)
	fmt.Fprintf(&s, "New:         %d\n", report.New)

	var categories []string
	for category := range report.PerCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(&s, "  %-10s %d\n", category, report.PerCategory[category])
	}
	if report.Unmatched > 0 {
		s.WriteString(warnStyle.Render(fmt.Sprintf("Unmatched:   %d", report.Unmatched)))
		s.WriteString("\n")
	}

	sent := fmt.Sprintf("Alerts sent: %d", report.AlertsSent())
	if report.AlertsSent() > 0 {
		sent = okStyle.Render(sent)
	}
	s.WriteString(sent)
	s.WriteString("\n")
	if len(report.Failed) > 0 {
		s.WriteString(errStyle.Render("Failed:      " + strings.Join(report.Failed, ", ")))
		s.WriteString("\n")
	}
	return s.String()
}
