package escalation

import (
	"testing"
)

func testCategories() []Category {
	return []Category{
		{
			Name:                "atlas",
			Webhook:             "https://hooks.example.com/atlas",
			PlatformKeywords:    []string{"atlas", "dac"},
			TitleKeywords:       []string{"dac", "data access", "atlas", "dashboard", "file analysis"},
			DescriptionKeywords: []string{"data access control", "atlas", "dac"},
		},
		{
			Name:                "snowflake",
			Webhook:             "https://hooks.example.com/snowflake",
			PlatformKeywords:    []string{"snowflake"},
			TitleKeywords:       []string{"snowflake", "snow", "scope template"},
			DescriptionKeywords: []string{"snowflake", "snow"},
		},
		{
			Name:                "salesforce",
			Webhook:             "https://hooks.example.com/salesforce",
			PlatformKeywords:    []string{"salesforce"},
			TitleKeywords:       []string{"salesforce", "sfdc", "permission set"},
			DescriptionKeywords: []string{"salesforce", "sfdc", "crm"},
		},
	}
}

const (
	platformField = "VaronisSupport.SupportTicket.Platform"
	productField  = "VaronisSupport.SupportTicket.Product"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		fields       map[string]any
		expected     string
		expectedRule Rule
	}{
		{
			name:         "platform field",
			fields:       map[string]any{platformField: "Snowflake"},
			expected:     "snowflake",
			expectedRule: RulePlatform,
		},
		{
			name:         "platform substring, case insensitive",
			fields:       map[string]any{platformField: "SALESFORCE Cloud"},
			expected:     "salesforce",
			expectedRule: RulePlatform,
		},
		{
			name:         "product field is a platform annotation",
			fields:       map[string]any{productField: "DatAdvantage Cloud (DAC)"},
			expected:     "atlas",
			expectedRule: RulePlatform,
		},
		{
			name:         "title",
			fields:       map[string]any{"System.Title": "Scope template fails to apply"},
			expected:     "snowflake",
			expectedRule: RuleTitle,
		},
		{
			name:         "description html",
			fields:       map[string]any{"System.Title": "Sync broken", "System.Description": "<div>Customer CRM <b>integration</b> stopped</div>"},
			expected:     "salesforce",
			expectedRule: RuleDescription,
		},
		{
			name:         "first category in configuration order wins",
			fields:       map[string]any{"System.Title": "Atlas dashboard shows Snowflake data"},
			expected:     "atlas",
			expectedRule: RuleTitle,
		},
		{
			name:         "earlier category description beats later category platform",
			fields:       map[string]any{platformField: "Salesforce", "System.Description": "uses atlas"},
			expected:     "atlas",
			expectedRule: RuleDescription,
		},
		{
			name:     "no match",
			fields:   map[string]any{"System.Title": "Login page is slow", platformField: "On-prem"},
			expected: "",
		},
		{
			name:     "no fields",
			fields:   nil,
			expected: "",
		},
	}

	classifier := NewClassifier(testCategories(), DefaultFieldMap())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := classifier.Match(newItem(1, tt.fields))
			if tt.expected == "" {
				if ok {
					t.Errorf("expected no match, got %s by %s", match.Category.Name, match.Rule)
				}
				return
			}
			if !ok {
				t.Fatalf("expected %s, got no match", tt.expected)
			}
			if match.Category.Name != tt.expected {
				t.Errorf("expected category %s, got %s", tt.expected, match.Category.Name)
			}
			if match.Rule != tt.expectedRule {
				t.Errorf("expected rule %s, got %s", tt.expectedRule, match.Rule)
			}
		})
	}
}

func TestClassifyStrictPolicy(t *testing.T) {
	categories := []Category{
		{Name: "atlas", Policy: PolicyStrict, PlatformKeywords: []string{"mongodb", "mongo"}},
		{Name: "snowflake", PlatformKeywords: []string{"snowflake"}},
	}
	classifier := NewClassifier(categories, DefaultFieldMap())

	if _, ok := classifier.Classify(newItem(1, map[string]any{"System.Title": "MongoDB Atlas cluster down"})); ok {
		t.Errorf("expected strict category to ignore the title")
	}
	category, ok := classifier.Classify(newItem(2, map[string]any{platformField: "MongoDB Atlas"}))
	if !ok || category.Name != "atlas" {
		t.Errorf("expected atlas by platform, got %q (%t)", category.Name, ok)
	}
	category, ok = classifier.Classify(newItem(3, map[string]any{"System.Title": "mongo and snowflake"}))
	if !ok || category.Name != "snowflake" {
		t.Errorf("expected snowflake by title after strict atlas was skipped, got %q (%t)", category.Name, ok)
	}
}

func TestClassifyKeywordDefaults(t *testing.T) {
	classifier := NewClassifier([]Category{{Name: "snowflake", PlatformKeywords: []string{"Snowflake"}}}, DefaultFieldMap())

	if _, ok := classifier.Classify(newItem(1, map[string]any{"System.Title": "snowflake warehouse"})); !ok {
		t.Errorf("expected title to fall back to platform keywords")
	}
	if _, ok := classifier.Classify(newItem(2, map[string]any{"System.Description": "<p>SNOWFLAKE</p>"})); !ok {
		t.Errorf("expected description to fall back to platform keywords")
	}
}

func TestCategoryTitle(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{category: Category{Name: "snowflake"}, expected: "Snowflake"},
		{category: Category{Name: "snowflake", DisplayName: "Snowflake Data Cloud"}, expected: "Snowflake Data Cloud"},
		{category: Category{}, expected: ""},
		{category: Category{Name: "éclair"}, expected: "Éclair"},
		{category: Category{Name: "3rd-party"}, expected: "3rd-party"},
	}
	for _, tt := range tests {
		if got := tt.category.Title(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "  hello \n world ", expected: "hello world"},
		{name: "markup", input: "<div>Data <b>Access</b> Control</div><br/>issue", expected: "Data Access Control issue"},
		{name: "script dropped", input: "<p>ok</p><script>var x = 1;</script>", expected: "ok"},
		{name: "entities", input: "<p>A &amp; B</p>", expected: "A & B"},
		{name: "empty", input: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
