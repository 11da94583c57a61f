package teams

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/petr-muller/escalations/internal/escalation"
)

const defaultTimeout = 30 * time.Second

// StatusError is returned when a webhook answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// HTTPStatusCode returns the response status
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// MaskURL shortens a webhook URL so its secret part does not end up in logs
func MaskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}

// WebhookNotifier posts alerts to incoming webhooks
type WebhookNotifier struct {
	client *resty.Client
	format Format
}

// NewWebhookNotifier creates a notifier posting in the given format
func NewWebhookNotifier(format Format, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, format: format}
}

// Notify posts msg to webhookURL. Any 2xx status is a success.
func (n *WebhookNotifier) Notify(ctx context.Context, webhookURL string, msg escalation.Message) error {
	return n.Post(ctx, webhookURL, NewPayload(msg, n.format))
}

// Post sends an arbitrary JSON payload to webhookURL
func (n *WebhookNotifier) Post(ctx context.Context, webhookURL string, payload any) error {
	if !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		return fmt.Errorf("invalid webhook URL %q", MaskURL(webhookURL))
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", MaskURL(webhookURL), err)
	}
	if !resp.IsSuccess() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	logrus.WithFields(logrus.Fields{
		"webhook": MaskURL(webhookURL),
		"status":  resp.StatusCode(),
	}).Debug("Webhook accepted payload")
	return nil
}

// WriterNotifier prints alerts instead of posting them
type WriterNotifier struct {
	out io.Writer
}

// NewWriterNotifier creates a notifier writing to out
func NewWriterNotifier(out io.Writer) *WriterNotifier {
	return &WriterNotifier{out: out}
}

// Notify writes msg with its destination
func (n *WriterNotifier) Notify(_ context.Context, webhookURL string, msg escalation.Message) error {
	_, err := fmt.Fprintf(n.out, "--- %s -> %s\n%s\n", msg.Service, MaskURL(webhookURL), msg.Text)
	return err
}
