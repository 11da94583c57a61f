package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/petr-muller/escalations/internal/escalation"
)

const (
	EnvOrganization  = "AZURE_DEVOPS_ORGANIZATION"
	EnvProject       = "AZURE_DEVOPS_PROJECT"
	EnvToken         = "AZURE_DEVOPS_PAT"
	EnvQueryID       = "ESCALATION_QUERY_ID"
	envWebhookPrefix = "ESCALATION_WEBHOOK_"
)

// Config is the monitor configuration file
type Config struct {
	DevOps     DevOps     `yaml:"devops"`
	Fields     Fields     `yaml:"fields"`
	Monitor    Monitor    `yaml:"monitor"`
	Categories []Category `yaml:"categories"`
}

// DevOps locates the saved query the monitor polls
type DevOps struct {
	BaseURL      string `yaml:"baseURL"`
	Organization string `yaml:"organization"`
	Project      string `yaml:"project"`
	QueryID      string `yaml:"queryID"`
}

// Fields maps logical fields to tracker reference names
type Fields struct {
	State        string   `yaml:"state"`
	CreatedDate  string   `yaml:"createdDate"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	AssignedTo   string   `yaml:"assignedTo"`
	Severity     string   `yaml:"severity"`
	Customer     string   `yaml:"customer"`
	TicketNumber string   `yaml:"ticketNumber"`
	Platform     []string `yaml:"platform"`
}

// Monitor holds the polling behavior
type Monitor struct {
	IntervalMinutes int           `yaml:"intervalMinutes"`
	ErrorBackoff    time.Duration `yaml:"errorBackoff"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	UseLastCheck    bool          `yaml:"useLastCheck"`
	MessageFormat   string        `yaml:"messageFormat"`
}

// Category is a service category and its alert destination
type Category struct {
	Name                string   `yaml:"name"`
	DisplayName         string   `yaml:"displayName,omitempty"`
	Webhook             string   `yaml:"webhook"`
	Policy              string   `yaml:"policy,omitempty"`
	PlatformKeywords    []string `yaml:"platformKeywords"`
	TitleKeywords       []string `yaml:"titleKeywords,omitempty"`
	DescriptionKeywords []string `yaml:"descriptionKeywords,omitempty"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	fields := escalation.DefaultFieldMap()
	return &Config{
		DevOps: DevOps{
			BaseURL: "https://dev.azure.com",
		},
		Fields: Fields{
			State:        fields.State,
			CreatedDate:  fields.CreatedDate,
			Title:        fields.Title,
			Description:  fields.Description,
			AssignedTo:   fields.AssignedTo,
			Severity:     fields.Severity,
			Customer:     fields.Customer,
			TicketNumber: fields.TicketNumber,
			Platform:     fields.Platform,
		},
		Monitor: Monitor{
			IntervalMinutes: int(escalation.DefaultInterval / time.Minute),
			ErrorBackoff:    escalation.DefaultErrorBackoff,
			RequestTimeout:  escalation.DefaultRequestTimeout,
			MessageFormat:   "text",
		},
		Categories: []Category{
			{
				Name:                "atlas",
				PlatformKeywords:    []string{"atlas", "dac"},
				TitleKeywords:       []string{"dac", "data access", "atlas", "dashboard", "file analysis"},
				DescriptionKeywords: []string{"data access control", "atlas", "dac"},
			},
			{
				Name:                "snowflake",
				PlatformKeywords:    []string{"snowflake"},
				TitleKeywords:       []string{"snowflake", "snow", "scope template"},
				DescriptionKeywords: []string{"snowflake", "snow"},
			},
			{
				Name:                "salesforce",
				PlatformKeywords:    []string{"salesforce"},
				TitleKeywords:       []string{"salesforce", "sfdc", "permission set"},
				DescriptionKeywords: []string{"salesforce", "sfdc", "crm"},
			},
		},
	}
}

// Load reads the configuration file at path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// webhooks are secrets
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9]+`)

// WebhookEnv returns the environment variable overriding the webhook of a category
func WebhookEnv(category string) string {
	return envWebhookPrefix + nonAlphanumeric.ReplaceAllString(strings.ToUpper(category), "_")
}

// ApplyEnv overrides values from the environment; getenv is usually os.Getenv
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvOrganization); v != "" {
		c.DevOps.Organization = v
	}
	if v := getenv(EnvProject); v != "" {
		c.DevOps.Project = v
	}
	if v := getenv(EnvQueryID); v != "" {
		c.DevOps.QueryID = v
	}
	for i := range c.Categories {
		if v := getenv(WebhookEnv(c.Categories[i].Name)); v != "" {
			c.Categories[i].Webhook = v
		}
	}
}

// Validate checks the configuration is usable by the monitor
func (c *Config) Validate() error {
	var errs []error
	if c.DevOps.Organization == "" {
		errs = append(errs, fmt.Errorf("devops.organization is required (or set %s)", EnvOrganization))
	}
	if c.DevOps.Project == "" {
		errs = append(errs, fmt.Errorf("devops.project is required (or set %s)", EnvProject))
	}
	if c.DevOps.QueryID == "" {
		errs = append(errs, fmt.Errorf("devops.queryID is required (or set %s)", EnvQueryID))
	}
	if c.Fields.State == "" {
		errs = append(errs, errors.New("fields.state must not be empty"))
	}
	if c.Monitor.IntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("monitor.intervalMinutes must be positive, got %d", c.Monitor.IntervalMinutes))
	}
	switch c.Monitor.MessageFormat {
	case "", "text", "card":
	default:
		errs = append(errs, fmt.Errorf("monitor.messageFormat must be text or card, got %q", c.Monitor.MessageFormat))
	}

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	}
	seen := sets.New[string]()
	for i, category := range c.Categories {
		if category.Name == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
			continue
		}
		if seen.Has(category.Name) {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate name %q", i, category.Name))
		}
		seen.Insert(category.Name)

		switch escalation.Policy(category.Policy) {
		case "", escalation.PolicyLoose, escalation.PolicyStrict:
		default:
			errs = append(errs, fmt.Errorf("categories[%d]: unknown policy %q", i, category.Policy))
		}
		if len(category.PlatformKeywords) == 0 {
			errs = append(errs, fmt.Errorf("categories[%d]: platformKeywords must not be empty", i))
		}
		if category.Webhook != "" && !strings.HasPrefix(category.Webhook, "http://") && !strings.HasPrefix(category.Webhook, "https://") {
			errs = append(errs, fmt.Errorf("categories[%d]: webhook must be an http(s) URL", i))
		}
	}

	return utilerrors.NewAggregate(errs)
}

// FieldMap converts the field configuration for the monitor
func (f Fields) FieldMap() escalation.FieldMap {
	return escalation.FieldMap{
		State:        f.State,
		CreatedDate:  f.CreatedDate,
		Title:        f.Title,
		Description:  f.Description,
		AssignedTo:   f.AssignedTo,
		Severity:     f.Severity,
		Customer:     f.Customer,
		TicketNumber: f.TicketNumber,
		Platform:     f.Platform,
	}
}

// ServiceCategories converts the category configuration for the monitor
func (c *Config) ServiceCategories() []escalation.Category {
	categories := make([]escalation.Category, 0, len(c.Categories))
	for _, category := range c.Categories {
		policy := escalation.Policy(category.Policy)
		if policy == "" {
			policy = escalation.PolicyLoose
		}
		categories = append(categories, escalation.Category{
			Name:                category.Name,
			DisplayName:         category.DisplayName,
			Webhook:             category.Webhook,
			Policy:              policy,
			PlatformKeywords:    category.PlatformKeywords,
			TitleKeywords:       category.TitleKeywords,
			DescriptionKeywords: category.DescriptionKeywords,
		})
	}
	return categories
}

// Interval returns the continuous mode interval
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalMinutes) * time.Minute
}

// MonitorConfig assembles the monitor configuration
func (c *Config) MonitorConfig() escalation.Config {
	return escalation.Config{
		BaseURL:        c.DevOps.BaseURL,
		Organization:   c.DevOps.Organization,
		Project:        c.DevOps.Project,
		QueryID:        c.DevOps.QueryID,
		Fields:         c.Fields.FieldMap(),
		Categories:     c.ServiceCategories(),
		UseLastCheck:   c.Monitor.UseLastCheck,
		RequestTimeout: c.Monitor.RequestTimeout,
		ErrorBackoff:   c.Monitor.ErrorBackoff,
	}
}
