package teams

import (
	"fmt"

	"github.com/petr-muller/escalations/internal/escalation"
)

// Format selects the webhook payload layout
type Format string

const (
	// FormatText posts {"text": ...} with the markdown body
	FormatText Format = "text"
	// FormatCard posts a message with an Adaptive Card attachment
	FormatCard Format = "card"
)

// ParseFormat validates a format name, defaulting to text
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatText:
		return FormatText, nil
	case FormatCard:
		return FormatCard, nil
	default:
		return "", fmt.Errorf("unknown message format %q, expected %q or %q", value, FormatText, FormatCard)
	}
}

// TextPayload is the simplest incoming webhook body
type TextPayload struct {
	Text string `json:"text"`
}

// CardMessage wraps adaptive cards into a webhook message
type CardMessage struct {
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is a single card attachment
type Attachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     AdaptiveCard `json:"content"`
}

// AdaptiveCard is the subset of the Adaptive Card schema the alerts use
type AdaptiveCard struct {
	Schema  string    `json:"$schema"`
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
}

// Element is a card body element: a TextBlock, Container or FactSet
type Element struct {
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	Weight    string    `json:"weight,omitempty"`
	Size      string    `json:"size,omitempty"`
	Color     string    `json:"color,omitempty"`
	Wrap      bool      `json:"wrap,omitempty"`
	Separator bool      `json:"separator,omitempty"`
	Items     []Element `json:"items,omitempty"`
	Facts     []Fact    `json:"facts,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
}

// Fact is a title/value pair in a FactSet
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is a card action
type Action struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NewPayload builds the webhook body of msg in the given format
func NewPayload(msg escalation.Message, format Format) any {
	if format == FormatCard {
		return NewCardMessage(msg)
	}
	return TextPayload{Text: msg.Text}
}

// NewCardMessage renders msg as an Adaptive Card with one container per item
func NewCardMessage(msg escalation.Message) CardMessage {
	body := []Element{
		{Type: "TextBlock", Text: msg.Header, Weight: "Bolder", Size: "Large", Color: "Attention", Wrap: true},
		{Type: "FactSet", Facts: []Fact{
			{Title: fmt.Sprintf("New %s Tickets", msg.Service), Value: fmt.Sprintf("%d tickets", len(msg.Lines))},
			{Title: "Report Time", Value: msg.ReportTime.Format(escalation.ReportTimeLayout)},
		}},
	}

	for _, line := range msg.Lines {
		title := fmt.Sprintf("Ticket #%s - %s", line.TicketNumber, line.Customer)
		color := "Default"
		if line.Marker != "" {
			title += fmt.Sprintf(" (%s)", line.Marker)
			color = "Attention"
		}
		body = append(body, Element{
			Type:      "Container",
			Separator: true,
			Items: []Element{
				{Type: "TextBlock", Text: title, Weight: "Bolder", Color: color, Wrap: true},
				{Type: "TextBlock", Text: line.Title, Wrap: true},
				{Type: "FactSet", Facts: []Fact{
					{Title: "Status", Value: line.State},
					{Title: "Severity", Value: line.Severity},
					{Title: "Assigned To", Value: line.AssignedTo},
					{Title: "Created", Value: line.Created},
				}},
				{Type: "ActionSet", Actions: []Action{
					{Type: "Action.OpenUrl", Title: "View in Azure DevOps", URL: line.URL},
				}},
			},
		})
	}

	return CardMessage{
		Type: "message",
		Attachments: []Attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: AdaptiveCard{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body:    body,
			},
		}},
	}
}
