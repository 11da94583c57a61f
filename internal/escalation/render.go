package escalation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// ReportTimeLayout is the layout of the report time shown in messages
	ReportTimeLayout = "2006-01-02 15:04:05"

	unknown    = "Unknown"
	unassigned = "Unassigned"
)

// Line is one rendered item of an alert message
type Line struct {
	ID           int
	TicketNumber string
	Customer     string
	Title        string
	State        string
	AssignedTo   string
	Created      string
	Severity     string
	Marker       string
	URL          string
}

// Message is the rendered alert of one category. Text holds the markdown body;
// the remaining fields let notifiers build richer payloads.
type Message struct {
	Category   string
	Service    string
	Header     string
	ReportTime time.Time
	Lines      []Line
	Text       string
}

// SeverityMarker maps a severity value to the marker shown next to an item
func SeverityMarker(severity string) string {
	severity = strings.TrimSpace(severity)
	switch {
	case strings.HasPrefix(severity, "1 -"):
		return "CRITICAL"
	case strings.HasPrefix(severity, "2 -"):
		return "HIGH"
	default:
		return ""
	}
}

// Renderer turns a batch into an alert message
type Renderer struct {
	fields       FieldMap
	baseURL      string
	organization string
	project      string
}

// NewRenderer creates a renderer linking items into the given organization and project
func NewRenderer(fields FieldMap, baseURL, organization, project string) *Renderer {
	return &Renderer{
		fields:       fields,
		baseURL:      strings.TrimRight(baseURL, "/"),
		organization: organization,
		project:      project,
	}
}

// ItemURL returns the browser link of a work item
func (r *Renderer) ItemURL(id int) string {
	return fmt.Sprintf("%s/%s/%s/_workitems/edit/%d", r.baseURL, url.PathEscape(r.organization), url.PathEscape(r.project), id)
}

// Line renders a single item
func (r *Renderer) Line(item WorkItem) Line {
	severity := item.Field(r.fields.Severity)
	return Line{
		ID:           item.ID,
		TicketNumber: item.FieldOr(r.fields.TicketNumber, unknown),
		Customer:     item.FieldOr(r.fields.Customer, unknown),
		Title:        item.FieldOr(r.fields.Title, unknown),
		State:        item.FieldOr(r.fields.State, unknown),
		AssignedTo:   item.FieldOr(r.fields.AssignedTo, unassigned),
		Created:      item.FieldOr(r.fields.CreatedDate, unknown),
		Severity:     strings.TrimSpace(orDefault(severity, unknown)),
		Marker:       SeverityMarker(severity),
		URL:          r.ItemURL(item.ID),
	}
}

// Render builds the message of a category, or returns false when there is nothing to send
func (r *Renderer) Render(category Category, items []WorkItem, now time.Time) (Message, bool) {
	if len(items) == 0 {
		return Message{}, false
	}

	service := category.Title()
	msg := Message{
		Category:   category.Name,
		Service:    service,
		Header:     fmt.Sprintf("New %s ticket detected", service),
		ReportTime: now,
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", msg.Header)
	fmt.Fprintf(&text, "**New %s Tickets**: %d tickets\n", service, len(items))
	fmt.Fprintf(&text, "**Report Time**: %s\n\n", now.Format(ReportTimeLayout))

	for _, item := range items {
		line := r.Line(item)
		msg.Lines = append(msg.Lines, line)

		marker := ""
		if line.Marker != "" {
			marker = fmt.Sprintf(" (%s)", line.Marker)
		}
		fmt.Fprintf(&text, "• **[Ticket #%s](%s)** - %s%s\n", line.TicketNumber, line.URL, line.Customer, marker)
	}
	msg.Text = text.String()

	return msg, true
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
