package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/petr-muller/escalations/internal/config"
	"github.com/petr-muller/escalations/internal/escalation"
	"github.com/petr-muller/escalations/internal/flagutil"
	"github.com/petr-muller/escalations/internal/teams"
	"github.com/petr-muller/escalations/internal/ui"
)

type options struct {
	configPath string
	logLevel   string
	devops     flagutil.DevOpsOptions

	continuous      bool
	intervalMinutes int
	dryRun          bool
	fixture         string
	format          string
	metricsAddr     string
}

var opts options

func main() {
	rootCmd := &cobra.Command{
		Use:   "escalation-monitor",
		Short: "Alert chat channels about new escalation tickets",
		Long: `Escalation monitor polls a saved Azure DevOps work item query, classifies every
new ticket into an external service category and posts one alert per category
to the category's Teams channel.

A ticket is alerted on at most once per process lifetime. Alerts that fail to
deliver are retried in the next cycle.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the monitor configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "Read work items from a YAML fixture instead of Azure DevOps")
	opts.devops.AddPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newRunCmd(),
		newPreviewCmd(),
		newTestWebhooksCmd(),
		newInitConfigCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		logrus.WithError(err).Fatal("command failed")
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [interval-minutes]",
		Short: "Run a single monitoring cycle, or monitor continuously",
		Long: `Run a single monitoring cycle and print its report. With --continuous, keep
running cycles until interrupted, pausing between cycles for the interval given
as an argument, by --interval, or by the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := resolveInterval(cmd, args)
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cmd.OutOrStdout(), interval)
		},
	}

	cmd.Flags().BoolVarP(&opts.continuous, "continuous", "c", false, "Keep monitoring until interrupted")
	cmd.Flags().IntVarP(&opts.intervalMinutes, "interval", "i", 0, "Minutes between cycles in continuous mode (default from config, 5)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print alerts instead of posting them")
	cmd.Flags().StringVar(&opts.format, "format", "", "Alert format: text or card (default from config)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

// resolveInterval returns the interval in minutes from the argument, the flag, or
// zero to use the configured value
func resolveInterval(cmd *cobra.Command, args []string) (int, error) {
	if len(args) == 1 {
		if !opts.continuous {
			return 0, errors.New("an interval only applies with --continuous")
		}
		if cmd.Flags().Changed("interval") {
			return 0, errors.New("give the interval either as an argument or with --interval, not both")
		}
		minutes, err := strconv.Atoi(args[0])
		if err != nil || minutes <= 0 {
			return 0, fmt.Errorf("interval must be a positive number of minutes, got %q", args[0])
		}
		return minutes, nil
	}
	if cmd.Flags().Changed("interval") {
		if !opts.continuous {
			return 0, errors.New("an interval only applies with --continuous")
		}
		if opts.intervalMinutes <= 0 {
			return 0, fmt.Errorf("--interval must be positive, got %d", opts.intervalMinutes)
		}
		return opts.intervalMinutes, nil
	}
	return 0, nil
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show how the monitor would treat the current query results",
		Long: `Fetch the saved query once and show, for every work item, whether it is new,
which service category it belongs to and which rule matched. Nothing is posted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context())
		},
	}
}

func newTestWebhooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-webhooks",
		Short: "Post a test message to every configured category webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestWebhooks(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", opts.configPath)
			}
			if err := config.Default().Save(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", opts.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	opts.devops.Complete(cfg)
	if opts.format != "" {
		cfg.Monitor.MessageFormat = opts.format
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", opts.configPath, err)
	}
	return cfg, nil
}

func createSource() (escalation.Source, error) {
	if opts.fixture != "" {
		logrus.Infof("Reading work items from fixture %s", opts.fixture)
		return escalation.LoadFixture(opts.fixture)
	}

	if err := opts.devops.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Azure DevOps options: %w", err)
	}
	client, err := opts.devops.Client()
	if err != nil {
		return nil, fmt.Errorf("cannot create Azure DevOps client: %w", err)
	}
	return escalation.NewRemoteSource(client), nil
}

func createNotifier(cfg *config.Config, out io.Writer) (escalation.Notifier, error) {
	if opts.dryRun {
		return teams.NewWriterNotifier(out), nil
	}
	format, err := teams.ParseFormat(cfg.Monitor.MessageFormat)
	if err != nil {
		return nil, err
	}
	return teams.NewWebhookNotifier(format, cfg.Monitor.RequestTimeout), nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		logrus.Infof("Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Metrics server failed")
		}
	}()
}

func runMonitor(ctx context.Context, out io.Writer, intervalMinutes int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if intervalMinutes > 0 {
		cfg.Monitor.IntervalMinutes = intervalMinutes
	}

	source, err := createSource()
	if err != nil {
		return err
	}
	notifier, err := createNotifier(cfg, out)
	if err != nil {
		return err
	}

	monitorOpts := []escalation.Option{}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		monitorOpts = append(monitorOpts, escalation.WithMetrics(escalation.NewMetrics(reg)))
		serveMetrics(ctx, opts.metricsAddr, reg)
	}
	monitor := escalation.NewMonitor(cfg.MonitorConfig(), source, notifier, monitorOpts...)

	mode := "single cycle"
	if opts.continuous {
		mode = fmt.Sprintf("continuous, every %d minutes", cfg.Monitor.IntervalMinutes)
	}
	if opts.dryRun {
		mode += ", dry run"
	}
	fmt.Fprintln(out, ui.Banner{
		Organization: cfg.DevOps.Organization,
		Project:      cfg.DevOps.Project,
		QueryID:      cfg.DevOps.QueryID,
		Categories:   cfg.ServiceCategories(),
		Mode:         mode,
	}.Render())

	if opts.continuous {
		return monitor.Run(ctx, cfg.Interval())
	}

	report, err := monitor.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("monitoring cycle failed: %w", err)
	}
	fmt.Fprint(out, ui.RenderReport(report))
	return nil
}

func runPreview(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, err := createSource()
	if err != nil {
		return err
	}

	fields := cfg.Fields.FieldMap()
	monitor := escalation.NewMonitor(cfg.MonitorConfig(), source, teams.NewWriterNotifier(io.Discard))
	load := func(ctx context.Context) ([]ui.Row, error) {
		items, err := monitor.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return ui.BuildRows(monitor, fields, items, time.Now()), nil
	}

	title := fmt.Sprintf("Query %s in %s/%s", cfg.DevOps.QueryID, cfg.DevOps.Organization, cfg.DevOps.Project)
	p := tea.NewProgram(ui.NewModel(ctx, title, load), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running preview: %w", err)
	}
	return nil
}

func runTestWebhooks(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	notifier := teams.NewWebhookNotifier(teams.FormatText, cfg.Monitor.RequestTimeout)
	results := notifier.TestWebhooks(ctx, cfg.ServiceCategories(), time.Now())

	failed := 0
	for _, result := range results {
		if result.OK() {
			fmt.Fprintf(out, "✅ %-12s %s\n", result.Category, result.Webhook)
			continue
		}
		failed++
		fmt.Fprintf(out, "❌ %-12s %s: %v\n", result.Category, result.Webhook, result.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d webhooks failed", failed, len(results))
	}
	return nil
}
