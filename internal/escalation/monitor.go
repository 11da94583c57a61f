package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/clock"
)

const (
	// DefaultInterval is the pause between cycles in continuous mode
	DefaultInterval = 5 * time.Minute
	// DefaultErrorBackoff is the pause after a cycle failed unexpectedly
	DefaultErrorBackoff = 30 * time.Second
	// DefaultRequestTimeout bounds each fetch and notify call
	DefaultRequestTimeout = 30 * time.Second
)

// Source retrieves the work items of a saved query
type Source interface {
	ListItemIDs(ctx context.Context, project, queryID string) ([]int, error)
	GetItems(ctx context.Context, project string, ids []int) ([]WorkItem, error)
}

// Notifier delivers a rendered message to a webhook
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, msg Message) error
}

// Config describes what a Monitor watches and where it links to
type Config struct {
	BaseURL      string
	Organization string
	Project      string
	QueryID      string

	Fields     FieldMap
	Categories []Category

	// UseLastCheck enables the secondary creation-time filter
	UseLastCheck   bool
	RequestTimeout time.Duration
	ErrorBackoff   time.Duration
}

// Option customizes a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithLogger replaces the standard logrus logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMetrics records cycle results into metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// Monitor runs poll cycles against a saved query and alerts on new items. A
// Monitor is not safe for concurrent use; each instance owns its own state.
type Monitor struct {
	source     Source
	notifier   Notifier
	classifier *Classifier
	renderer   *Renderer
	tracker    *Tracker
	fields     FieldMap

	project        string
	queryID        string
	requestTimeout time.Duration
	errorBackoff   time.Duration

	clock   clock.Clock
	logger  logrus.FieldLogger
	metrics *Metrics

	runID string
	cycle int
}

// NewMonitor creates a monitor with empty novelty state
func NewMonitor(cfg Config, source Source, notifier Notifier, opts ...Option) *Monitor {
	m := &Monitor{
		source:         source,
		notifier:       notifier,
		classifier:     NewClassifier(cfg.Categories, cfg.Fields),
		renderer:       NewRenderer(cfg.Fields, cfg.BaseURL, cfg.Organization, cfg.Project),
		tracker:        NewTracker(cfg.Fields, cfg.UseLastCheck),
		fields:         cfg.Fields,
		project:        cfg.Project,
		queryID:        cfg.QueryID,
		requestTimeout: cfg.RequestTimeout,
		errorBackoff:   cfg.ErrorBackoff,
		clock:          clock.RealClock{},
		logger:         logrus.StandardLogger(),
		runID:          uuid.NewString(),
	}
	if m.requestTimeout <= 0 {
		m.requestTimeout = DefaultRequestTimeout
	}
	if m.errorBackoff <= 0 {
		m.errorBackoff = DefaultErrorBackoff
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("run", m.runID)
	return m
}

// RunID identifies this monitor instance in logs and reports
func (m *Monitor) RunID() string {
	return m.runID
}

// Classifier returns the classifier built from the configured categories
func (m *Monitor) Classifier() *Classifier {
	return m.classifier
}

// Renderer returns the message renderer
func (m *Monitor) Renderer() *Renderer {
	return m.renderer
}

// Tracker returns the novelty state
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Fetch runs the saved query and retrieves the full records of its items
func (m *Monitor) Fetch(ctx context.Context) ([]WorkItem, error) {
	listCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	ids, err := m.source.ListItemIDs(listCtx, m.project, m.queryID)
	if err != nil {
		return nil, &FetchError{Stage: "run saved query", Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	getCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	items, err := m.source.GetItems(getCtx, m.project, ids)
	if err != nil {
		return nil, &FetchError{Stage: "get work items", Err: err}
	}
	return items, nil
}

// RunOnce executes a single poll cycle. Fetch and notify failures are recovered
// and recorded in the report; the returned error is reserved for failures the
// cycle could not handle.
func (m *Monitor) RunOnce(ctx context.Context) (report CycleReport, err error) {
	m.cycle++
	report = CycleReport{
		RunID:       m.runID,
		Cycle:       m.cycle,
		Started:     m.clock.Now(),
		PerCategory: map[string]int{},
	}
	logger := m.logger.WithField("cycle", report.Cycle)
	logger.Infof("Starting cycle at %s", report.Started.Format(ReportTimeLayout))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle %d panicked: %v", report.Cycle, r)
		}
		report.Duration = m.clock.Since(report.Started)
		m.metrics.observe(report, m.tracker.ProcessedCount(), err)
	}()

	items, fetchErr := m.Fetch(ctx)
	if fetchErr != nil {
		logger.WithError(fetchErr).Warn("Could not fetch work items, nothing to process")
		report.FetchError = fetchErr
		return report, nil
	}
	report.Fetched = len(items)
	if len(items) == 0 {
		logger.Info("Saved query returned no work items")
		return report, nil
	}

	fresh := m.tracker.Filter(items)
	report.New = len(fresh)

	batch := BuildBatches(fresh, m.classifier)
	report.PerCategory = batch.Counts()
	report.Unmatched = len(batch.Unmatched)
	for _, item := range batch.Unmatched {
		logger.WithFields(logrus.Fields{
			"id":    item.ID,
			"title": item.Field(m.fields.Title),
		}).Info("New work item does not match any category")
	}

	now := m.clock.Now()
	var errs []error
	for _, b := range batch.Batches {
		msg, ok := m.renderer.Render(b.Category, b.Items, now)
		if !ok {
			continue
		}
		categoryLogger := logger.WithFields(logrus.Fields{"category": b.Category.Name, "items": len(b.Items)})
		if err := m.notify(ctx, b.Category, msg); err != nil {
			categoryLogger.WithError(err).Error("Failed to send alert, items stay eligible for the next cycle")
			m.tracker.Defer(b.Items...)
			report.Failed = append(report.Failed, b.Category.Name)
			errs = append(errs, err)
			continue
		}
		m.tracker.Commit(b.Items...)
		report.Sent = append(report.Sent, b.Category.Name)
		categoryLogger.Info("Alert sent")
	}
	report.NotifyErrors = utilerrors.NewAggregate(errs)

	m.tracker.MarkChecked(m.clock.Now())
	return report, nil
}

func (m *Monitor) notify(ctx context.Context, category Category, msg Message) error {
	if category.Webhook == "" {
		return newNotifyError(category.Name, errNoWebhook)
	}
	notifyCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if err := m.notifier.Notify(notifyCtx, category.Webhook, msg); err != nil {
		return newNotifyError(category.Name, err)
	}
	return nil
}

// Run executes cycles until ctx is cancelled, pausing interval between cycles
// and the error backoff after a failed one
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	m.logger.Infof("Starting continuous monitoring every %s", interval)

	for {
		if ctx.Err() != nil {
			m.logger.Info("Monitoring stopped")
			return nil
		}

		wait := interval
		report, err := m.RunOnce(ctx)
		if err != nil {
			m.logger.WithError(err).Errorf("Cycle failed, restarting in %s", m.errorBackoff)
			wait = m.errorBackoff
		} else {
			m.logger.WithFields(report.Fields()).Info(report.Summary())
		}

		select {
		case <-ctx.Done():
			m.logger.Info("Monitoring stopped")
			return nil
		case <-m.clock.After(wait):
		}
	}
}
