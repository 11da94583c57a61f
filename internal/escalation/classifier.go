package escalation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy selects which rules a category may match on
type Policy string

const (
	// PolicyLoose matches on platform annotation, title and description
	PolicyLoose Policy = "loose"
	// PolicyStrict matches on the platform annotation only
	PolicyStrict Policy = "strict"
)

// Rule identifies which classification rule matched an item
type Rule string

const (
	RulePlatform    Rule = "platform"
	RuleTitle       Rule = "title"
	RuleDescription Rule = "description"
)

// Category is an external-service category and its alert destination
type Category struct {
	Name        string
	DisplayName string
	Webhook     string
	Policy      Policy

	PlatformKeywords    []string
	TitleKeywords       []string
	DescriptionKeywords []string
}

// Title returns the human-readable service name used in messages
func (c Category) Title() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.Name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(c.Name)
	return string(unicode.ToUpper(r)) + c.Name[size:]
}

// Match describes why an item was assigned to a category
type Match struct {
	Category Category
	Rule     Rule
	Keyword  string
}

type compiledCategory struct {
	category    Category
	platform    []string
	title       []string
	description []string
}

// Classifier assigns items to the first matching category in configuration order
type Classifier struct {
	fields     FieldMap
	categories []compiledCategory
}

// NewClassifier prepares the keyword sets of the given categories. Title and
// description keywords default to the platform keywords.
func NewClassifier(categories []Category, fields FieldMap) *Classifier {
	c := &Classifier{fields: fields}
	for _, category := range categories {
		compiled := compiledCategory{
			category: category,
			platform: lowered(category.PlatformKeywords),
		}
		compiled.title = lowered(category.TitleKeywords)
		if len(compiled.title) == 0 {
			compiled.title = compiled.platform
		}
		compiled.description = lowered(category.DescriptionKeywords)
		if len(compiled.description) == 0 {
			compiled.description = compiled.platform
		}
		c.categories = append(c.categories, compiled)
	}
	return c
}

// Categories returns the configured categories in order
func (c *Classifier) Categories() []Category {
	categories := make([]Category, 0, len(c.categories))
	for _, compiled := range c.categories {
		categories = append(categories, compiled.category)
	}
	return categories
}

// Classify returns the category of an item, or false if none matches
func (c *Classifier) Classify(item WorkItem) (Category, bool) {
	match, ok := c.Match(item)
	return match.Category, ok
}

// Match is Classify that also reports the rule and keyword that decided
func (c *Classifier) Match(item WorkItem) (Match, bool) {
	var platforms []string
	for _, field := range c.fields.Platform {
		if value := strings.ToLower(item.Field(field)); value != "" {
			platforms = append(platforms, value)
		}
	}
	title := strings.ToLower(item.Field(c.fields.Title))

	// description is the most expensive field to prepare and is only needed by loose categories
	var description string
	var descriptionReady bool

	for _, compiled := range c.categories {
		for _, platform := range platforms {
			if keyword, ok := containsAny(platform, compiled.platform); ok {
				return Match{Category: compiled.category, Rule: RulePlatform, Keyword: keyword}, true
			}
		}
		if compiled.category.Policy == PolicyStrict {
			continue
		}
		if keyword, ok := containsAny(title, compiled.title); ok {
			return Match{Category: compiled.category, Rule: RuleTitle, Keyword: keyword}, true
		}
		if !descriptionReady {
			description = strings.ToLower(PlainText(item.Field(c.fields.Description)))
			descriptionReady = true
		}
		if keyword, ok := containsAny(description, compiled.description); ok {
			return Match{Category: compiled.category, Rule: RuleDescription, Keyword: keyword}, true
		}
	}
	return Match{}, false
}

func containsAny(value string, keywords []string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, keyword := range keywords {
		if strings.Contains(value, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func lowered(keywords []string) []string {
	var out []string
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			out = append(out, keyword)
		}
	}
	return out
}
