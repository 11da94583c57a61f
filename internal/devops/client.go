package devops

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the hosted service endpoint
	DefaultBaseURL = "https://dev.azure.com"
	// APIVersion is sent with every request
	APIVersion = "7.1"
	// MaxBatchSize is the largest number of ids the work item batch endpoint accepts
	MaxBatchSize = 200

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Options configure a Client
type Options struct {
	BaseURL      string
	Organization string
	Token        string
	// TokenGenerator, when set, is consulted on every request and takes
	// precedence over Token
	TokenGenerator func() []byte
	Timeout        time.Duration
}

// Client is a thin wrapper over the work tracking, git, build and core REST APIs
// of a single organization
type Client struct {
	client       *resty.Client
	organization string
}

// Object is an API resource passed through without interpretation
type Object = map[string]any

// WorkItem is a work item record
type WorkItem struct {
	ID        int              `json:"id"`
	Rev       int              `json:"rev,omitempty"`
	Fields    map[string]any   `json:"fields"`
	Relations []map[string]any `json:"relations,omitempty"`
	URL       string           `json:"url,omitempty"`
}

// WorkItemReference is a work item as returned by a query
type WorkItemReference struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// QueryResult is the result of a WIQL query
type QueryResult struct {
	QueryType string              `json:"queryType,omitempty"`
	AsOf      string              `json:"asOf,omitempty"`
	WorkItems []WorkItemReference `json:"workItems"`
}

// IDs returns the ids of the referenced work items in query order
func (r QueryResult) IDs() []int {
	ids := make([]int, 0, len(r.WorkItems))
	for _, ref := range r.WorkItems {
		ids = append(ids, ref.ID)
	}
	return ids
}

// PatchOperation is a single JSON Patch operation on a work item
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// APIError is returned for responses with a non-2xx status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("azure devops API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("azure devops API returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status
func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewClient creates a client authenticating with a personal access token
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/"+url.PathEscape(opts.Organization)).
		SetBasicAuth("", opts.Token).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if opts.TokenGenerator != nil {
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.SetBasicAuth("", string(opts.TokenGenerator()))
			return nil
		})
	}

	return &Client{client: client, organization: opts.Organization}
}

// Organization returns the organization the client talks to
func (c *Client) Organization() string {
	return c.organization
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetQueryParam("api-version", APIVersion)
}

func execute(req *resty.Request, method, path, action string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fmt.Errorf("failed to %s: %w", action, &APIError{StatusCode: resp.StatusCode(), Body: body})
	}
	return nil
}

// RunSavedQuery executes a stored query and returns the referenced work items
func (c *Client) RunSavedQuery(ctx context.Context, project, queryID string) (*QueryResult, error) {
	var result QueryResult
	req := c.request(ctx).
		SetPathParams(map[string]string{"project": project, "id": queryID}).
		SetResult(&result)
	if err := execute(req, http.MethodGet, "/{project}/_apis/wit/wiql/{id}", "run saved query "+queryID); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryWIQL executes an ad-hoc WIQL query. A positive top limits the number of results.
func (c *Client) QueryWIQL(ctx context.Context, project, wiql string, top int) (*QueryResult, error) {
	var result QueryResult
	req := c.request(ctx).
		SetPathParam("project", project).
		SetBody(map[string]string{"query": wiql}).
		SetResult(&result)
	if top > 0 {
		req.SetQueryParam("$top", strconv.Itoa(top))
	}
	if err := execute(req, http.MethodPost, "/{project}/_apis/wit/wiql", "run WIQL query"); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWorkItems retrieves work items by id, preserving the order of ids. Requests
// are split into batches the API accepts. With no fields, all fields and
// relations are expanded.
func (c *Client) GetWorkItems(ctx context.Context, project string, ids []int, fields ...string) ([]WorkItem, error) {
	var items []WorkItem
	for start := 0; start < len(ids); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(ids))
		chunk := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, strconv.Itoa(id))
		}

		var result listResponse[WorkItem]
		req := c.request(ctx).
			SetQueryParam("ids", strings.Join(chunk, ",")).
			SetResult(&result)
		if len(fields) > 0 {
			req.SetQueryParam("fields", strings.Join(fields, ","))
		} else {
			req.SetQueryParam("$expand", "All")
		}

		path := "/_apis/wit/workitems"
		if project != "" {
			req.SetPathParam("project", project)
			path = "/{project}/_apis/wit/workitems"
		}
		if err := execute(req, http.MethodGet, path, fmt.Sprintf("get %d work items", len(chunk))); err != nil {
			return nil, err
		}
		items = append(items, result.Value...)
	}
	return items, nil
}

// GetWorkItem retrieves a single work item. An empty expand means All.
func (c *Client) GetWorkItem(ctx context.Context, id int, expand string) (*WorkItem, error) {
	if expand == "" {
		expand = "All"
	}
	var item WorkItem
	req := c.request(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		SetQueryParam("$expand", expand).
		SetResult(&item)
	if err := execute(req, http.MethodGet, "/_apis/wit/workitems/{id}", fmt.Sprintf("get work item %d", id)); err != nil {
		return nil, err
	}
	return &item, nil
}

// FieldPatch builds a JSON Patch document setting the given fields. Field names
// are reference names; nil values are skipped.
func FieldPatch(op string, fields map[string]any, order []string) []PatchOperation {
	var patch []PatchOperation
	for _, name := range order {
		value, ok := fields[name]
		if !ok || value == nil {
			continue
		}
		patch = append(patch, PatchOperation{Op: op, Path: "/fields/" + name, Value: value})
	}
	return patch
}

// CreateWorkItem creates a work item of the given type
func (c *Client) CreateWorkItem(ctx context.Context, project, workItemType string, patch []PatchOperation) (*WorkItem, error) {
	var item WorkItem
	req := c.request(ctx).
		SetPathParams(map[string]string{"project": project, "type": workItemType}).
		SetHeader("Content-Type", "application/json-patch+json").
		SetBody(patch).
		SetResult(&item)
	if err := execute(req, http.MethodPost, "/{project}/_apis/wit/workitems/${type}", "create "+workItemType); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateWorkItem applies a JSON Patch document to a work item
func (c *Client) UpdateWorkItem(ctx context.Context, id int, patch []PatchOperation) (*WorkItem, error) {
	var item WorkItem
	req := c.request(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		SetHeader("Content-Type", "application/json-patch+json").
		SetBody(patch).
		SetResult(&item)
	if err := execute(req, http.MethodPatch, "/_apis/wit/workitems/{id}", fmt.Sprintf("update work item %d", id)); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) list(ctx context.Context, path string, params map[string]string, query map[string]string, action string) ([]Object, error) {
	var result listResponse[Object]
	req := c.request(ctx).
		SetPathParams(params).
		SetQueryParams(query).
		SetResult(&result)
	if err := execute(req, http.MethodGet, path, action); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, action string) (Object, error) {
	var result Object
	req := c.request(ctx).
		SetPathParams(params).
		SetResult(&result)
	if err := execute(req, http.MethodGet, path, action); err != nil {
		return nil, err
	}
	return result, nil
}

// ListRepositories lists the git repositories of a project
func (c *Client) ListRepositories(ctx context.Context, project string) ([]Object, error) {
	return c.list(ctx, "/{project}/_apis/git/repositories", map[string]string{"project": project}, nil, "list repositories")
}

// GetRepository retrieves a git repository by name or id
func (c *Client) GetRepository(ctx context.Context, project, repository string) (Object, error) {
	return c.get(ctx, "/{project}/_apis/git/repositories/{repository}",
		map[string]string{"project": project, "repository": repository}, "get repository "+repository)
}

// ListBuilds lists builds of a project, optionally of a single definition
func (c *Client) ListBuilds(ctx context.Context, project string, definitionID, top int) ([]Object, error) {
	query := map[string]string{}
	if definitionID > 0 {
		query["definitions"] = strconv.Itoa(definitionID)
	}
	if top > 0 {
		query["$top"] = strconv.Itoa(top)
	}
	return c.list(ctx, "/{project}/_apis/build/builds", map[string]string{"project": project}, query, "list builds")
}

// GetBuild retrieves a build by id
func (c *Client) GetBuild(ctx context.Context, project string, buildID int) (Object, error) {
	return c.get(ctx, "/{project}/_apis/build/builds/{id}",
		map[string]string{"project": project, "id": strconv.Itoa(buildID)}, fmt.Sprintf("get build %d", buildID))
}

// ListTeams lists the teams of a project
func (c *Client) ListTeams(ctx context.Context, project string) ([]Object, error) {
	return c.list(ctx, "/_apis/projects/{project}/teams", map[string]string{"project": project}, nil, "list teams")
}

// GetTeam retrieves a team by name or id
func (c *Client) GetTeam(ctx context.Context, project, team string) (Object, error) {
	return c.get(ctx, "/_apis/projects/{project}/teams/{team}",
		map[string]string{"project": project, "team": team}, "get team "+team)
}

// ListProjects lists the projects of the organization
func (c *Client) ListProjects(ctx context.Context) ([]Object, error) {
	return c.list(ctx, "/_apis/projects", nil, nil, "list projects")
}

// GetProject retrieves a project by name or id
func (c *Client) GetProject(ctx context.Context, project string) (Object, error) {
	return c.get(ctx, "/_apis/projects/{project}", map[string]string{"project": project}, "get project "+project)
}
