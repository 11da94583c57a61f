package escalation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CycleReport summarizes one poll cycle
type CycleReport struct {
	RunID    string
	Cycle    int
	Started  time.Time
	Duration time.Duration

	Fetched     int
	New         int
	PerCategory map[string]int
	Unmatched   int

	// Sent and Failed list category names in configuration order
	Sent   []string
	Failed []string

	FetchError   error
	NotifyErrors error
}

// AlertsSent returns the number of messages delivered in the cycle
func (r CycleReport) AlertsSent() int {
	return len(r.Sent)
}

// Fields returns the report as structured log fields
func (r CycleReport) Fields() logrus.Fields {
	fields := logrus.Fields{
		"run":       r.RunID,
		"cycle":     r.Cycle,
		"fetched":   r.Fetched,
		"new":       r.New,
		"unmatched": r.Unmatched,
		"sent":      r.AlertsSent(),
		"duration":  r.Duration.Round(time.Millisecond).String(),
	}
	for category, count := range r.PerCategory {
		fields["category."+category] = count
	}
	if len(r.Failed) > 0 {
		fields["failed"] = strings.Join(r.Failed, ",")
	}
	return fields
}

// Summary returns a one-line description of the cycle
func (r CycleReport) Summary() string {
	if r.FetchError != nil {
		return fmt.Sprintf("cycle %d: nothing to process (%v)", r.Cycle, r.FetchError)
	}

	var categories []string
	for category := range r.PerCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	var counts []string
	for _, category := range categories {
		counts = append(counts, fmt.Sprintf("%s=%d", category, r.PerCategory[category]))
	}

	summary := fmt.Sprintf("cycle %d: fetched %d, new %d, unmatched %d, alerts sent %d",
		r.Cycle, r.Fetched, r.New, r.Unmatched, r.AlertsSent())
	if len(counts) > 0 {
		summary += " [" + strings.Join(counts, " ") + "]"
	}
	if len(r.Failed) > 0 {
		summary += ", failed: " + strings.Join(r.Failed, ",")
	}
	return summary
}
