package teams

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		value       string
		expected    Format
		expectError bool
	}{
		{value: "", expected: FormatText},
		{value: "text", expected: FormatText},
		{value: "card", expected: FormatCard},
		{value: "html", expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseFormat(tt.value)
			if (err != nil) != tt.expectError {
				t.Fatalf("expected error %t, got %v", tt.expectError, err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNewPayload(t *testing.T) {
	msg := testMessage()
	if payload, ok := NewPayload(msg, FormatText).(TextPayload); !ok || payload.Text != msg.Text {
		t.Errorf("expected text payload, got %#v", NewPayload(msg, FormatText))
	}
	if _, ok := NewPayload(msg, FormatCard).(CardMessage); !ok {
		t.Errorf("expected card payload, got %#v", NewPayload(msg, FormatCard))
	}
}

func TestNewCardMessage(t *testing.T) {
	card := NewCardMessage(testMessage()).Attachments[0].Content

	if card.Type != "AdaptiveCard" || card.Version != "1.4" {
		t.Errorf("unexpected card header %s %s", card.Type, card.Version)
	}
	if len(card.Body) != 3 {
		t.Fatalf("expected header, summary and one item container, got %d elements", len(card.Body))
	}
	if card.Body[0].Text != "New Snowflake ticket detected" {
		t.Errorf("unexpected header %q", card.Body[0].Text)
	}
	expectedSummary := []Fact{
		{Title: "New Snowflake Tickets", Value: "1 tickets"},
		{Title: "Report Time", Value: "2025-08-20 18:30:05"},
	}
	if diff := cmp.Diff(expectedSummary, card.Body[1].Facts); diff != "" {
		t.Errorf("unexpected summary facts (-want +got):\n%s", diff)
	}

	item := card.Body[2]
	if item.Type != "Container" || len(item.Items) != 4 {
		t.Fatalf("unexpected item container %+v", item)
	}
	if item.Items[0].Text != "Ticket #0001 - Acme (CRITICAL)" || item.Items[0].Color != "Attention" {
		t.Errorf("unexpected item title %q (%s)", item.Items[0].Text, item.Items[0].Color)
	}
	expectedFacts := []Fact{
		{Title: "Status", Value: "New"},
		{Title: "Severity", Value: "1 - Critical"},
		{Title: "Assigned To", Value: "Unassigned"},
		{Title: "Created", Value: "2025-08-20T18:00:00Z"},
	}
	if diff := cmp.Diff(expectedFacts, item.Items[2].Facts); diff != "" {
		t.Errorf("unexpected item facts (-want +got):\n%s", diff)
	}
	action := item.Items[3].Actions[0]
	if action.Type != "Action.OpenUrl" || action.URL != "https://dev.azure.com/org/proj/_workitems/edit/100" {
		t.Errorf("unexpected action %+v", action)
	}
}
