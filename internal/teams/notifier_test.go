package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/petr-muller/escalations/internal/escalation"
)

type webhookServer struct {
	*httptest.Server

	lock   sync.Mutex
	bodies []string
	status int
}

func newWebhookServer(t *testing.T, status int) *webhookServer {
	t.Helper()
	s := &webhookServer{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.lock.Lock()
		s.bodies = append(s.bodies, string(body))
		s.lock.Unlock()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte("1"))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *webhookServer) received() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.bodies...)
}

func testMessage() escalation.Message {
	return escalation.Message{
		Category:   "snowflake",
		Service:    "Snowflake",
		Header:     "New Snowflake ticket detected",
		ReportTime: time.Date(2025, 8, 20, 18, 30, 5, 0, time.UTC),
		Lines: []escalation.Line{{
			ID:           100,
			TicketNumber: "0001",
			Customer:     "Acme",
			Title:        "Snowflake role missing",
			State:        "New",
			AssignedTo:   "Unassigned",
			Created:      "2025-08-20T18:00:00Z",
			Severity:     "1 - Critical",
			Marker:       "CRITICAL",
			URL:          "https://dev.azure.com/org/proj/_workitems/edit/100",
		}},
		Text: "New Snowflake ticket detected\n\nbody",
	}
}

func TestWebhookNotifierText(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		expectError bool
	}{
		{name: "200 accepted", status: http.StatusOK},
		{name: "202 accepted", status: http.StatusAccepted},
		{name: "500 rejected", status: http.StatusInternalServerError, expectError: true},
		{name: "400 rejected", status: http.StatusBadRequest, expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newWebhookServer(t, tt.status)
			notifier := NewWebhookNotifier(FormatText, time.Second)

			err := notifier.Notify(context.Background(), server.URL, testMessage())
			if tt.expectError {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("expected StatusError, got %v", err)
				}
				if statusErr.HTTPStatusCode() != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, statusErr.HTTPStatusCode())
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			bodies := server.received()
			if len(bodies) != 1 {
				t.Fatalf("expected one request, got %d", len(bodies))
			}
			var payload TextPayload
			if err := json.Unmarshal([]byte(bodies[0]), &payload); err != nil {
				t.Fatalf("failed to decode payload: %v", err)
			}
			if payload.Text != testMessage().Text {
				t.Errorf("expected message text, got %q", payload.Text)
			}
		})
	}
}

func TestWebhookNotifierCard(t *testing.T) {
	server := newWebhookServer(t, http.StatusOK)
	notifier := NewWebhookNotifier(FormatCard, time.Second)

	if err := notifier.Notify(context.Background(), server.URL, testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload CardMessage
	if err := json.Unmarshal([]byte(server.received()[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Type != "message" || len(payload.Attachments) != 1 {
		t.Fatalf("unexpected card message: %+v", payload)
	}
	if payload.Attachments[0].ContentType != "application/vnd.microsoft.card.adaptive" {
		t.Errorf("unexpected content type %q", payload.Attachments[0].ContentType)
	}
}

func TestWebhookNotifierInvalidURL(t *testing.T) {
	notifier := NewWebhookNotifier(FormatText, time.Second)
	for _, url := range []string{"", "ftp://example.com/hook", "hooks.example.com"} {
		if err := notifier.Notify(context.Background(), url, testMessage()); err == nil {
			t.Errorf("expected an error for %q", url)
		}
	}
}

func TestMaskURL(t *testing.T) {
	long := "https://example.webhook.office.com/webhookb2/0123456789abcdef/IncomingWebhook/secret"
	tests := []struct {
		url      string
		expected string
	}{
		{url: "https://short.example.com", expected: "https://short.example.com"},
		{url: long, expected: long[:30] + "..." + long[len(long)-10:]},
	}
	for _, tt := range tests {
		if got := MaskURL(tt.url); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}

func TestWriterNotifier(t *testing.T) {
	var out bytes.Buffer
	notifier := NewWriterNotifier(&out)

	if err := notifier.Notify(context.Background(), "https://hooks.example.com/snowflake", testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "--- Snowflake -> https://hooks.example.com/snowflake\nNew Snowflake ticket detected\n\nbody\n"
	if diff := cmp.Diff(expected, out.String()); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestTestWebhooks(t *testing.T) {
	ok := newWebhookServer(t, http.StatusOK)
	failing := newWebhookServer(t, http.StatusNotFound)
	now := time.Date(2025, 8, 20, 18, 30, 5, 0, time.UTC)

	categories := []escalation.Category{
		{Name: "atlas", Webhook: ok.URL},
		{Name: "snowflake"},
		{Name: "salesforce", Webhook: failing.URL},
	}
	results := NewWebhookNotifier(FormatText, time.Second).TestWebhooks(context.Background(), categories, now)

	var got []string
	for _, result := range results {
		got = append(got, result.Category)
	}
	if diff := cmp.Diff([]string{"atlas", "snowflake", "salesforce"}, got); diff != "" {
		t.Errorf("unexpected result order (-want +got):\n%s", diff)
	}
	if !results[0].OK() {
		t.Errorf("expected atlas to succeed, got %v", results[0].Err)
	}
	if results[1].OK() {
		t.Errorf("expected snowflake without webhook to fail")
	}
	var statusErr *StatusError
	if !errors.As(results[2].Err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected salesforce to fail with 404, got %v", results[2].Err)
	}

	var payload TextPayload
	if err := json.Unmarshal([]byte(ok.received()[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !strings.Contains(payload.Text, "Test Alert for Atlas") || !strings.Contains(payload.Text, "2025-08-20 18:30:05") {
		t.Errorf("unexpected test message %q", payload.Text)
	}
}
