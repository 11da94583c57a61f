package escalation

import (
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// StateNew is the only state that makes an item eligible for an alert
const StateNew = "New"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a tracker timestamp. Zone-less values are taken as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsNew decides whether an item should be alerted on. A zero lastCheck means the
// timestamp filter does not apply. Items with a missing or unparseable creation
// date pass the timestamp filter.
func IsNew(item WorkItem, fields FieldMap, processed sets.Set[int], lastCheck time.Time) bool {
	if processed.Has(item.ID) {
		return false
	}
	if item.Field(fields.State) != StateNew {
		return false
	}
	if lastCheck.IsZero() {
		return true
	}
	created, ok := ParseTimestamp(item.Field(fields.CreatedDate))
	if !ok {
		return true
	}
	return created.After(lastCheck)
}

// Tracker holds the novelty state of one monitor for the lifetime of the process
type Tracker struct {
	fields    FieldMap
	processed sets.Set[int]
	// retry holds items whose alert failed; they bypass the last check filter
	retry        sets.Set[int]
	lastCheck    time.Time
	useLastCheck bool
}

// NewTracker creates an empty tracker. When useLastCheck is false the last check
// time is recorded but never used to filter items.
func NewTracker(fields FieldMap, useLastCheck bool) *Tracker {
	return &Tracker{
		fields:       fields,
		processed:    sets.New[int](),
		retry:        sets.New[int](),
		useLastCheck: useLastCheck,
	}
}

// IsNew reports whether item is eligible for an alert in the current cycle
func (t *Tracker) IsNew(item WorkItem) bool {
	var lastCheck time.Time
	if t.useLastCheck && !t.retry.Has(item.ID) {
		lastCheck = t.lastCheck
	}
	return IsNew(item, t.fields, t.processed, lastCheck)
}

// Filter returns the new items, preserving order
func (t *Tracker) Filter(items []WorkItem) []WorkItem {
	var fresh []WorkItem
	for _, item := range items {
		if t.IsNew(item) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// Commit records items as alerted on
func (t *Tracker) Commit(items ...WorkItem) {
	for _, item := range items {
		t.processed.Insert(item.ID)
		t.retry.Delete(item.ID)
	}
}

// Defer keeps items whose alert failed eligible until they are committed, even
// once the last check moves past their creation time
func (t *Tracker) Defer(items ...WorkItem) {
	for _, item := range items {
		t.retry.Insert(item.ID)
	}
}

// Pending reports whether the id is waiting for a retried alert
func (t *Tracker) Pending(id int) bool {
	return t.retry.Has(id)
}

// Processed reports whether the id was already alerted on
func (t *Tracker) Processed(id int) bool {
	return t.processed.Has(id)
}

// ProcessedCount returns the number of ids alerted on so far
func (t *Tracker) ProcessedCount() int {
	return t.processed.Len()
}

// MarkChecked records the end of a cycle
func (t *Tracker) MarkChecked(now time.Time) {
	t.lastCheck = now
}

// LastCheck returns the end time of the previous cycle, zero before the first one
func (t *Tracker) LastCheck() time.Time {
	return t.lastCheck
}
