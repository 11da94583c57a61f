package escalation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is a canned saved-query result
type Fixture struct {
	Items []WorkItem `yaml:"items"`
}

// FixtureSource serves work items from a Fixture, in fixture order
type FixtureSource struct {
	fixture Fixture
}

// NewFixtureSource serves the given items
func NewFixtureSource(items ...WorkItem) *FixtureSource {
	return &FixtureSource{fixture: Fixture{Items: items}}
}

// LoadFixture reads a YAML fixture file
func LoadFixture(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	for i, item := range fixture.Items {
		if item.ID == 0 {
			return nil, fmt.Errorf("fixture item %d has no id", i)
		}
	}
	return &FixtureSource{fixture: fixture}, nil
}

// ListItemIDs returns the ids of all fixture items
func (s *FixtureSource) ListItemIDs(_ context.Context, _, _ string) ([]int, error) {
	ids := make([]int, 0, len(s.fixture.Items))
	for _, item := range s.fixture.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// GetItems returns the fixture items with the given ids, in the order of ids
func (s *FixtureSource) GetItems(_ context.Context, _ string, ids []int) ([]WorkItem, error) {
	byID := make(map[int]WorkItem, len(s.fixture.Items))
	for _, item := range s.fixture.Items {
		byID[item.ID] = item
	}
	var items []WorkItem
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}
