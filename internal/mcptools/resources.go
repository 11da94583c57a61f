package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	resourceScheme       = "azure-devops://"
	resourceWorkItemsTop = 100
	resourceBuildsTop    = 50
)

// Resource is a resource definition with its handler
type Resource struct {
	Definition mcp.Resource
	Handler    server.ResourceHandlerFunc
}

// ResourceURI builds the URI of an organization or project resource. An empty
// project addresses the organization.
func ResourceURI(organization, project, kind string) string {
	if project == "" {
		return resourceScheme + url.PathEscape(organization) + "/" + kind
	}
	return resourceScheme + url.PathEscape(organization) + "/" + url.PathEscape(project) + "/" + kind
}

// Resources returns the read-only resources. Project resources exist only when
// a default project is configured.
func (t *Toolset) Resources() []Resource {
	organization := t.api.Organization()
	var resources []Resource

	if project := t.defaultProject; project != "" {
		resources = append(resources,
			t.resource(ResourceURI(organization, project, "work-items"),
				"Work Items - "+project, fmt.Sprintf("Work items from the %s project", project),
				func(ctx context.Context) (any, error) {
					return t.recentWorkItems(ctx, project, "", resourceWorkItemsTop)
				}),
			t.resource(ResourceURI(organization, project, "repositories"),
				"Repositories - "+project, fmt.Sprintf("Repositories in the %s project", project),
				func(ctx context.Context) (any, error) {
					return t.api.ListRepositories(ctx, project)
				}),
			t.resource(ResourceURI(organization, project, "builds"),
				"Builds - "+project, fmt.Sprintf("Builds from the %s project", project),
				func(ctx context.Context) (any, error) {
					return t.api.ListBuilds(ctx, project, 0, resourceBuildsTop)
				}),
		)
	}

	resources = append(resources, t.resource(ResourceURI(organization, "", "projects"),
		"Projects", fmt.Sprintf("All projects in the %s organization", organization),
		func(ctx context.Context) (any, error) {
			return t.api.ListProjects(ctx)
		}))

	return resources
}

func (t *Toolset) resource(uri, name, description string, read func(context.Context) (any, error)) Resource {
	return Resource{
		Definition: mcp.NewResource(uri, name,
			mcp.WithResourceDescription(description),
			mcp.WithMIMEType("application/json"),
		),
		Handler: func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			result, err := read(ctx)
			if err != nil {
				t.logger.WithError(err).WithField("uri", uri).Warn("Failed to read resource")
				return nil, fmt.Errorf("failed to read %s: %w", uri, err)
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			}, nil
		},
	}
}
