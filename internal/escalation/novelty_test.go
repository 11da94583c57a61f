package escalation

import (
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

func newItem(id int, fields map[string]any) WorkItem {
	return WorkItem{ID: id, Fields: fields}
}

func TestIsNew(t *testing.T) {
	fields := DefaultFieldMap()
	lastCheck := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		item      WorkItem
		processed sets.Set[int]
		lastCheck time.Time
		expected  bool
	}{
		{
			name:      "new state, never processed",
			item:      newItem(100, map[string]any{"System.State": "New"}),
			processed: sets.New[int](),
			expected:  true,
		},
		{
			name:      "already processed",
			item:      newItem(100, map[string]any{"System.State": "New"}),
			processed: sets.New(100),
			expected:  false,
		},
		{
			name:      "in progress",
			item:      newItem(101, map[string]any{"System.State": "In Progress"}),
			processed: sets.New[int](),
			expected:  false,
		},
		{
			name:      "state is case sensitive",
			item:      newItem(101, map[string]any{"System.State": "new"}),
			processed: sets.New[int](),
			expected:  false,
		},
		{
			name:      "missing state",
			item:      newItem(102, map[string]any{}),
			processed: sets.New[int](),
			expected:  false,
		},
		{
			name:      "created before last check",
			item:      newItem(103, map[string]any{"System.State": "New", "System.CreatedDate": "2025-08-20T11:59:59Z"}),
			processed: sets.New[int](),
			lastCheck: lastCheck,
			expected:  false,
		},
		{
			name:      "created exactly at last check",
			item:      newItem(103, map[string]any{"System.State": "New", "System.CreatedDate": "2025-08-20T12:00:00Z"}),
			processed: sets.New[int](),
			lastCheck: lastCheck,
			expected:  false,
		},
		{
			name:      "created after last check",
			item:      newItem(104, map[string]any{"System.State": "New", "System.CreatedDate": "2025-08-20T12:00:00.5Z"}),
			processed: sets.New[int](),
			lastCheck: lastCheck,
			expected:  true,
		},
		{
			name:      "unparseable creation date fails open",
			item:      newItem(105, map[string]any{"System.State": "New", "System.CreatedDate": "yesterday"}),
			processed: sets.New[int](),
			lastCheck: lastCheck,
			expected:  true,
		},
		{
			name:      "missing creation date fails open",
			item:      newItem(106, map[string]any{"System.State": "New"}),
			processed: sets.New[int](),
			lastCheck: lastCheck,
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.processed.Len()
			result := IsNew(tt.item, fields, tt.processed, tt.lastCheck)
			if result != tt.expected {
				t.Errorf("expected %t, got %t", tt.expected, result)
			}
			if tt.processed.Len() != before {
				t.Errorf("IsNew modified the processed set")
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Time
		ok       bool
	}{
		{value: "2025-08-20T18:30:00Z", expected: time.Date(2025, 8, 20, 18, 30, 0, 0, time.UTC), ok: true},
		{value: "2025-08-20T18:30:00.123Z", expected: time.Date(2025, 8, 20, 18, 30, 0, 123000000, time.UTC), ok: true},
		{value: "2025-08-20T20:30:00+02:00", expected: time.Date(2025, 8, 20, 18, 30, 0, 0, time.UTC), ok: true},
		{value: "2025-08-20T18:30:00.5", expected: time.Date(2025, 8, 20, 18, 30, 0, 500000000, time.UTC), ok: true},
		{value: "", ok: false},
		{value: "not a date", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			result, ok := ParseTimestamp(tt.value)
			if ok != tt.ok {
				t.Fatalf("expected ok=%t, got %t", tt.ok, ok)
			}
			if ok && !result.Equal(tt.expected) {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestTrackerLastCheckFilter(t *testing.T) {
	fields := DefaultFieldMap()
	old := newItem(1, map[string]any{"System.State": "New", "System.CreatedDate": "2025-01-01T00:00:00Z"})
	checked := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	disabled := NewTracker(fields, false)
	disabled.MarkChecked(checked)
	if !disabled.IsNew(old) {
		t.Errorf("expected old item to be new when the last check filter is disabled")
	}

	enabled := NewTracker(fields, true)
	if !enabled.IsNew(old) {
		t.Errorf("expected old item to be new before the first check")
	}
	enabled.MarkChecked(checked)
	if enabled.IsNew(old) {
		t.Errorf("expected old item to be filtered after a check")
	}
	if !enabled.LastCheck().Equal(checked) {
		t.Errorf("expected last check %s, got %s", checked, enabled.LastCheck())
	}
}

func TestTrackerDeferredItemsOutliveLastCheck(t *testing.T) {
	tracker := NewTracker(DefaultFieldMap(), true)
	item := newItem(1, map[string]any{"System.State": "New", "System.CreatedDate": "2025-05-31T23:59:00Z"})
	other := newItem(2, map[string]any{"System.State": "New", "System.CreatedDate": "2025-05-31T23:59:00Z"})

	tracker.Defer(item)
	tracker.MarkChecked(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if !tracker.IsNew(item) || !tracker.Pending(1) {
		t.Errorf("expected deferred item to stay new after the last check moved past it")
	}
	if tracker.IsNew(other) {
		t.Errorf("expected item that was never deferred to be filtered")
	}

	tracker.Commit(item)
	if tracker.IsNew(item) || tracker.Pending(1) {
		t.Errorf("expected committed item to leave the retry set")
	}

	closed := newItem(3, map[string]any{"System.State": "Closed", "System.CreatedDate": "2025-05-31T23:59:00Z"})
	tracker.Defer(closed)
	if tracker.IsNew(closed) {
		t.Errorf("expected deferred item to still need state New")
	}
}

func TestTrackerCommit(t *testing.T) {
	tracker := NewTracker(DefaultFieldMap(), false)
	items := []WorkItem{
		newItem(1, map[string]any{"System.State": "New"}),
		newItem(2, map[string]any{"System.State": "Active"}),
		newItem(3, map[string]any{"System.State": "New"}),
	}

	fresh := tracker.Filter(items)
	if len(fresh) != 2 || fresh[0].ID != 1 || fresh[1].ID != 3 {
		t.Fatalf("expected items 1 and 3, got %v", fresh)
	}

	tracker.Commit(fresh[0])
	if !tracker.Processed(1) || tracker.Processed(3) {
		t.Errorf("expected only item 1 to be processed")
	}
	if tracker.ProcessedCount() != 1 {
		t.Errorf("expected 1 processed item, got %d", tracker.ProcessedCount())
	}
	if fresh := tracker.Filter(items); len(fresh) != 1 || fresh[0].ID != 3 {
		t.Errorf("expected only item 3 to stay new, got %v", fresh)
	}
}
