package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/petr-muller/escalations/internal/devops"
)

const (
	defaultTop = 50
	maxTop     = 200

	fieldTitle       = "System.Title"
	fieldDescription = "System.Description"
	fieldState       = "System.State"
	fieldAssignedTo  = "System.AssignedTo"
	fieldPriority    = "Microsoft.VSTS.Common.Priority"
	fieldTags        = "System.Tags"
)

// API is the REST client surface exposed through tools
type API interface {
	Organization() string
	QueryWIQL(ctx context.Context, project, wiql string, top int) (*devops.QueryResult, error)
	GetWorkItems(ctx context.Context, project string, ids []int, fields ...string) ([]devops.WorkItem, error)
	GetWorkItem(ctx context.Context, id int, expand string) (*devops.WorkItem, error)
	CreateWorkItem(ctx context.Context, project, workItemType string, patch []devops.PatchOperation) (*devops.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int, patch []devops.PatchOperation) (*devops.WorkItem, error)
	ListRepositories(ctx context.Context, project string) ([]devops.Object, error)
	GetRepository(ctx context.Context, project, repository string) (devops.Object, error)
	ListBuilds(ctx context.Context, project string, definitionID, top int) ([]devops.Object, error)
	GetBuild(ctx context.Context, project string, buildID int) (devops.Object, error)
	ListTeams(ctx context.Context, project string) ([]devops.Object, error)
	GetTeam(ctx context.Context, project, team string) (devops.Object, error)
	ListProjects(ctx context.Context) ([]devops.Object, error)
	GetProject(ctx context.Context, project string) (devops.Object, error)
}

// Tool is a tool definition with its handler
type Tool struct {
	Definition mcp.Tool
	Handler    server.ToolHandlerFunc
}

// Toolset exposes the REST API of one organization as tools and resources
type Toolset struct {
	api            API
	defaultProject string
	logger         logrus.FieldLogger
}

// NewToolset creates a toolset. defaultProject is used when a tool call omits the project.
func NewToolset(api API, defaultProject string, logger logrus.FieldLogger) *Toolset {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Toolset{api: api, defaultProject: defaultProject, logger: logger}
}

// Register adds all tools and resources to the server
func (t *Toolset) Register(s *server.MCPServer) {
	for _, tool := range t.Tools() {
		s.AddTool(tool.Definition, tool.Handler)
	}
	for _, resource := range t.Resources() {
		s.AddResource(resource.Definition, resource.Handler)
	}
}

// projectArgument is optional when the server has a default project
func (t *Toolset) projectArgument() mcp.ToolOption {
	if t.defaultProject != "" {
		return mcp.WithString("project", mcp.Description(fmt.Sprintf("Project name or ID (default %q)", t.defaultProject)))
	}
	return mcp.WithString("project", mcp.Required(), mcp.Description("Project name or ID"))
}

// Tools returns the tool definitions in a stable order
func (t *Toolset) Tools() []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("list_work_items",
				mcp.WithDescription("List work items from an Azure DevOps project using a WIQL query"),
				t.projectArgument(),
				mcp.WithString("wiql", mcp.Description("WIQL query; defaults to recently changed work items of the project")),
				mcp.WithNumber("top", mcp.Description("Maximum number of work items to return"), mcp.Min(1), mcp.Max(maxTop), mcp.DefaultNumber(defaultTop)),
			),
			Handler: t.wrap("list_work_items", t.listWorkItems),
		},
		{
			Definition: mcp.NewTool("get_work_item",
				mcp.WithDescription("Get a specific work item by ID"),
				mcp.WithNumber("work_item_id", mcp.Required(), mcp.Description("Work item ID")),
				mcp.WithString("expand", mcp.Description("Expand options (None, Relations, Fields, Links, All)"), mcp.DefaultString("All")),
			),
			Handler: t.wrap("get_work_item", t.getWorkItem),
		},
		{
			Definition: mcp.NewTool("create_work_item",
				mcp.WithDescription("Create a new work item"),
				t.projectArgument(),
				mcp.WithString("work_item_type", mcp.Required(), mcp.Description("Work item type (e.g. Bug, Task, User Story)")),
				mcp.WithString("title", mcp.Required(), mcp.Description("Work item title")),
				mcp.WithString("description", mcp.Description("Work item description")),
				mcp.WithString("assigned_to", mcp.Description("User to assign the work item to")),
				mcp.WithNumber("priority", mcp.Description("Priority (1-4)"), mcp.Min(1), mcp.Max(4)),
				mcp.WithString("tags", mcp.Description("Semicolon-separated tags")),
			),
			Handler: t.wrap("create_work_item", t.createWorkItem),
		},
		{
			Definition: mcp.NewTool("update_work_item",
				mcp.WithDescription("Update an existing work item"),
				mcp.WithNumber("work_item_id", mcp.Required(), mcp.Description("Work item ID")),
				mcp.WithString("title", mcp.Description("New title")),
				mcp.WithString("description", mcp.Description("New description")),
				mcp.WithString("state", mcp.Description("New state")),
				mcp.WithString("assigned_to", mcp.Description("User to assign the work item to")),
				mcp.WithNumber("priority", mcp.Description("Priority (1-4)"), mcp.Min(1), mcp.Max(4)),
				mcp.WithString("tags", mcp.Description("Semicolon-separated tags")),
			),
			Handler: t.wrap("update_work_item", t.updateWorkItem),
		},
		{
			Definition: mcp.NewTool("list_repositories",
				mcp.WithDescription("List Git repositories in a project"),
				t.projectArgument(),
			),
			Handler: t.wrap("list_repositories", t.listRepositories),
		},
		{
			Definition: mcp.NewTool("get_repository",
				mcp.WithDescription("Get details of a specific repository"),
				t.projectArgument(),
				mcp.WithString("repository", mcp.Required(), mcp.Description("Repository name or ID")),
			),
			Handler: t.wrap("get_repository", t.getRepository),
		},
		{
			Definition: mcp.NewTool("list_builds",
				mcp.WithDescription("List builds in a project"),
				t.projectArgument(),
				mcp.WithNumber("definition_id", mcp.Description("Only builds of this build definition")),
				mcp.WithNumber("top", mcp.Description("Maximum number of builds to return"), mcp.Min(1), mcp.Max(maxTop), mcp.DefaultNumber(defaultTop)),
			),
			Handler: t.wrap("list_builds", t.listBuilds),
		},
		{
			Definition: mcp.NewTool("get_build",
				mcp.WithDescription("Get details of a specific build"),
				t.projectArgument(),
				mcp.WithNumber("build_id", mcp.Required(), mcp.Description("Build ID")),
			),
			Handler: t.wrap("get_build", t.getBuild),
		},
		{
			Definition: mcp.NewTool("list_teams",
				mcp.WithDescription("List teams in a project"),
				t.projectArgument(),
			),
			Handler: t.wrap("list_teams", t.listTeams),
		},
		{
			Definition: mcp.NewTool("get_team",
				mcp.WithDescription("Get details of a specific team"),
				t.projectArgument(),
				mcp.WithString("team", mcp.Required(), mcp.Description("Team name or ID")),
			),
			Handler: t.wrap("get_team", t.getTeam),
		},
		{
			Definition: mcp.NewTool("list_projects",
				mcp.WithDescription("List all projects in the organization"),
			),
			Handler: t.wrap("list_projects", t.listProjects),
		},
		{
			Definition: mcp.NewTool("get_project",
				mcp.WithDescription("Get details of a specific project"),
				t.projectArgument(),
			),
			Handler: t.wrap("get_project", t.getProject),
		},
	}
}

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest) (string, error)

// wrap turns handler errors into tool errors so a failed call never breaks the session
func (t *Toolset) wrap(name string, handler handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := handler(ctx, request)
		if err != nil {
			t.logger.WithError(err).WithField("tool", name).Warn("Tool call failed")
			return mcp.NewToolResultError(fmt.Sprintf("Error executing %s: %v", name, err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func (t *Toolset) project(request mcp.CallToolRequest) (string, error) {
	if project := request.GetString("project", ""); project != "" {
		return project, nil
	}
	if t.defaultProject != "" {
		return t.defaultProject, nil
	}
	return "", fmt.Errorf("required argument \"project\" not found")
}

func withJSON(prefix string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return prefix + "\n\n" + string(data), nil
}

// WorkItemSummary is the compact form of a work item returned by list_work_items
type WorkItemSummary struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	State       string `json:"state"`
	AssignedTo  string `json:"assignedTo"`
	CreatedDate any    `json:"createdDate"`
	ChangedDate any    `json:"changedDate"`
}

func summarize(item devops.WorkItem) WorkItemSummary {
	str := func(name, fallback string) string {
		if s, ok := item.Fields[name].(string); ok && s != "" {
			return s
		}
		return fallback
	}
	assignee := "Unassigned"
	switch v := item.Fields[fieldAssignedTo].(type) {
	case string:
		if v != "" {
			assignee = v
		}
	case map[string]any:
		if name, ok := v["displayName"].(string); ok && name != "" {
			assignee = name
		}
	}
	return WorkItemSummary{
		ID:          item.ID,
		Title:       str(fieldTitle, "No title"),
		Type:        str("System.WorkItemType", "Unknown"),
		State:       str(fieldState, "Unknown"),
		AssignedTo:  assignee,
		CreatedDate: item.Fields["System.CreatedDate"],
		ChangedDate: item.Fields["System.ChangedDate"],
	}
}

func defaultWIQL(project string) string {
	return fmt.Sprintf("SELECT [System.Id], [System.Title], [System.State], [System.AssignedTo], [System.WorkItemType], [System.CreatedDate] "+
		"FROM WorkItems WHERE [System.TeamProject] = '%s' ORDER BY [System.ChangedDate] DESC", project)
}

func clampTop(top int) int {
	return max(1, min(top, maxTop))
}

func (t *Toolset) recentWorkItems(ctx context.Context, project, wiql string, top int) ([]devops.WorkItem, error) {
	if wiql == "" {
		wiql = defaultWIQL(project)
	}
	result, err := t.api.QueryWIQL(ctx, project, wiql, top)
	if err != nil {
		return nil, err
	}
	ids := result.IDs()
	if len(ids) > top {
		ids = ids[:top]
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return t.api.GetWorkItems(ctx, project, ids)
}

func (t *Toolset) listWorkItems(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	top := clampTop(request.GetInt("top", defaultTop))

	items, err := t.recentWorkItems(ctx, project, request.GetString("wiql", ""), top)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No work items found.", nil
	}

	summaries := make([]WorkItemSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, summarize(item))
	}
	return withJSON(fmt.Sprintf("Found %d work items:", len(summaries)), summaries)
}

func (t *Toolset) getWorkItem(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	id, err := request.RequireInt("work_item_id")
	if err != nil {
		return "", err
	}
	item, err := t.api.GetWorkItem(ctx, id, request.GetString("expand", "All"))
	if err != nil {
		return "", err
	}
	return withJSON("Work Item Details:", item)
}

// fieldArguments maps optional tool arguments to the fields they set, in patch order
var fieldArguments = []struct {
	argument string
	field    string
}{
	{"title", fieldTitle},
	{"description", fieldDescription},
	{"state", fieldState},
	{"assigned_to", fieldAssignedTo},
	{"priority", fieldPriority},
	{"tags", fieldTags},
}

func fieldsFromArguments(request mcp.CallToolRequest) (map[string]any, []string) {
	arguments := request.GetArguments()
	fields := map[string]any{}
	var order []string
	for _, mapping := range fieldArguments {
		value, ok := arguments[mapping.argument]
		if !ok || value == nil {
			continue
		}
		fields[mapping.field] = value
		order = append(order, mapping.field)
	}
	return fields, order
}

func (t *Toolset) createWorkItem(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	workItemType, err := request.RequireString("work_item_type")
	if err != nil {
		return "", err
	}
	if _, err := request.RequireString("title"); err != nil {
		return "", err
	}
	// state is not settable on creation
	fields, order := fieldsFromArguments(request)
	delete(fields, fieldState)

	item, err := t.api.CreateWorkItem(ctx, project, workItemType, devops.FieldPatch("add", fields, order))
	if err != nil {
		return "", err
	}
	return withJSON("Work item created successfully:", item)
}

func (t *Toolset) updateWorkItem(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	id, err := request.RequireInt("work_item_id")
	if err != nil {
		return "", err
	}
	fields, order := fieldsFromArguments(request)
	if len(fields) == 0 {
		return "No fields provided to update.", nil
	}

	item, err := t.api.UpdateWorkItem(ctx, id, devops.FieldPatch("replace", fields, order))
	if err != nil {
		return "", err
	}
	return withJSON("Work item updated successfully:", item)
}

func (t *Toolset) listRepositories(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	repositories, err := t.api.ListRepositories(ctx, project)
	if err != nil {
		return "", err
	}
	return withJSON("Repositories:", repositories)
}

func (t *Toolset) getRepository(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	name, err := request.RequireString("repository")
	if err != nil {
		return "", err
	}
	repository, err := t.api.GetRepository(ctx, project, name)
	if err != nil {
		return "", err
	}
	return withJSON("Repository Details:", repository)
}

func (t *Toolset) listBuilds(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	builds, err := t.api.ListBuilds(ctx, project, request.GetInt("definition_id", 0), clampTop(request.GetInt("top", defaultTop)))
	if err != nil {
		return "", err
	}
	return withJSON("Builds:", builds)
}

func (t *Toolset) getBuild(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	id, err := request.RequireInt("build_id")
	if err != nil {
		return "", err
	}
	build, err := t.api.GetBuild(ctx, project, id)
	if err != nil {
		return "", err
	}
	return withJSON("Build Details:", build)
}

func (t *Toolset) listTeams(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	teams, err := t.api.ListTeams(ctx, project)
	if err != nil {
		return "", err
	}
	return withJSON("Teams:", teams)
}

func (t *Toolset) getTeam(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	name, err := request.RequireString("team")
	if err != nil {
		return "", err
	}
	team, err := t.api.GetTeam(ctx, project, name)
	if err != nil {
		return "", err
	}
	return withJSON("Team Details:", team)
}

func (t *Toolset) listProjects(ctx context.Context, _ mcp.CallToolRequest) (string, error) {
	projects, err := t.api.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	return withJSON("Projects:", projects)
}

func (t *Toolset) getProject(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	project, err := t.project(request)
	if err != nil {
		return "", err
	}
	details, err := t.api.GetProject(ctx, project)
	if err != nil {
		return "", err
	}
	return withJSON("Project Details:", details)
}
