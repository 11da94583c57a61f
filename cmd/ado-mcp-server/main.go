package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/petr-muller/escalations/internal/config"
	"github.com/petr-muller/escalations/internal/flagutil"
	"github.com/petr-muller/escalations/internal/mcptools"
)

const (
	serverName    = "azure-devops"
	serverVersion = "0.1.0"
)

var (
	devopsOptions flagutil.DevOpsOptions
	project       string
)

func main() {
	// stdout carries the protocol
	logrus.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:   "ado-mcp-server",
		Short: "Expose Azure DevOps work items, repositories and builds as MCP tools",
		Long: `ado-mcp-server serves the Azure DevOps REST API of one organization over the
Model Context Protocol on stdio. The organization and the default project are
read from flags or from AZURE_DEVOPS_ORGANIZATION and AZURE_DEVOPS_PROJECT; the
personal access token from AZURE_DEVOPS_PAT or the token file.`,
		SilenceUsage: true,
	}

	devopsOptions.AddPFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "Default project for tools and resources (or "+config.EnvProject+")")

	rootCmd.AddCommand(
		newServeCmd(),
		newToolsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		logrus.WithError(err).Fatal("command failed")
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tools and resources on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools and resources the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			toolset, err := createToolset()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tool := range toolset.Tools() {
				fmt.Fprintf(out, "%-20s %s\n", tool.Definition.Name, tool.Definition.Description)
			}
			for _, resource := range toolset.Resources() {
				fmt.Fprintf(out, "%-20s %s\n", "resource", resource.Definition.URI)
			}
			return nil
		},
	}
}

func completeFromEnv() {
	if devopsOptions.Organization == "" {
		devopsOptions.Organization = os.Getenv(config.EnvOrganization)
	}
	if project == "" {
		project = os.Getenv(config.EnvProject)
	}
}

func createToolset() (*mcptools.Toolset, error) {
	completeFromEnv()
	if err := devopsOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Azure DevOps options: %w", err)
	}
	client, err := devopsOptions.Client()
	if err != nil {
		return nil, fmt.Errorf("cannot create Azure DevOps client: %w", err)
	}
	return mcptools.NewToolset(client, project, logrus.StandardLogger()), nil
}

func runServe(ctx context.Context) error {
	toolset, err := createToolset()
	if err != nil {
		return err
	}

	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(fmt.Sprintf("Tools for the %s Azure DevOps organization: query, create and update work items, and inspect repositories, builds, teams and projects.", devopsOptions.Organization)),
	)
	toolset.Register(s)

	logrus.WithField("organization", devopsOptions.Organization).Info("Serving MCP on stdio")
	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
