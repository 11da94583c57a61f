package escalation

import (
	"errors"
	"fmt"
)

var errNoWebhook = errors.New("no webhook configured")

// FetchError is returned when the query or the item records could not be retrieved
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotifyError is returned when the alert of a category could not be delivered.
// StatusCode is zero when no response was received.
type NotifyError struct {
	Category   string
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to notify %s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to notify %s: %v", e.Category, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// statusCoder is implemented by notifier errors that carry an HTTP status
type statusCoder interface {
	HTTPStatusCode() int
}

func newNotifyError(category string, err error) *NotifyError {
	notifyErr := &NotifyError{Category: category, Err: err}
	var coded statusCoder
	if errors.As(err, &coded) {
		notifyErr.StatusCode = coded.HTTPStatusCode()
	}
	return notifyErr
}
