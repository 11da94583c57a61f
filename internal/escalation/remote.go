package escalation

import (
	"context"

	"github.com/petr-muller/escalations/internal/devops"
)

// workItemAPI is the part of the REST client a RemoteSource needs
type workItemAPI interface {
	RunSavedQuery(ctx context.Context, project, queryID string) (*devops.QueryResult, error)
	GetWorkItems(ctx context.Context, project string, ids []int, fields ...string) ([]devops.WorkItem, error)
}

// RemoteSource reads work items from the tracker REST API
type RemoteSource struct {
	api workItemAPI
}

// NewRemoteSource wraps a REST client as a Source
func NewRemoteSource(api workItemAPI) *RemoteSource {
	return &RemoteSource{api: api}
}

// ListItemIDs runs the saved query and returns the ids it references
func (s *RemoteSource) ListItemIDs(ctx context.Context, project, queryID string) ([]int, error) {
	result, err := s.api.RunSavedQuery(ctx, project, queryID)
	if err != nil {
		return nil, err
	}
	return result.IDs(), nil
}

// GetItems retrieves the full records of ids
func (s *RemoteSource) GetItems(ctx context.Context, project string, ids []int) ([]WorkItem, error) {
	records, err := s.api.GetWorkItems(ctx, project, ids)
	if err != nil {
		return nil, err
	}
	items := make([]WorkItem, 0, len(records))
	for _, record := range records {
		items = append(items, WorkItem{ID: record.ID, Fields: record.Fields})
	}
	return items, nil
}
