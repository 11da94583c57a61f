package teams

import (
	"context"
	"fmt"
	"time"

	"github.com/petr-muller/escalations/internal/escalation"
)

// TestResult is the outcome of posting a test message to one category webhook
type TestResult struct {
	Category string
	Webhook  string
	Err      error
}

// OK reports whether the webhook accepted the test message
func (r TestResult) OK() bool {
	return r.Err == nil
}

// TestMessage builds the connectivity test message of a category
func TestMessage(category escalation.Category, now time.Time) TextPayload {
	service := category.Title()
	return TextPayload{Text: fmt.Sprintf(
		"🧪 **Test Alert for %s**\n\n"+
			"This is a test message to verify the %s escalation webhook.\n\n"+
			"**Test Time**: %s\n\n"+
			"If you can see this message, alerts for %s tickets will be delivered to this channel.",
		service, service, now.Format(escalation.ReportTimeLayout), service)}
}

// TestWebhooks posts a test message to the webhook of every category, in order.
// Categories without a webhook are reported as failed without a request.
func (n *WebhookNotifier) TestWebhooks(ctx context.Context, categories []escalation.Category, now time.Time) []TestResult {
	var results []TestResult
	for _, category := range categories {
		result := TestResult{Category: category.Name, Webhook: MaskURL(category.Webhook)}
		if category.Webhook == "" {
			result.Err = fmt.Errorf("no webhook configured")
		} else {
			result.Err = n.Post(ctx, category.Webhook, TestMessage(category, now))
		}
		results = append(results, result)
	}
	return results
}
