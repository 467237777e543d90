package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-orchestrator/internal/mcp"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools",
	Long: `Serve the orchestrator tools over the Model Context Protocol.

By default messages are read from stdin and written to stdout. With --http the
tools are served over HTTP at POST /mcp instead.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Serve over HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries protocol frames; logs go to stderr.
	a, err := newApp(ctx, appOptions{logOut: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := mcp.NewServer(a.service, version, a.logger)
	if mcpHTTPAddr != "" {
		return srv.ListenAndServe(ctx, mcpHTTPAddr)
	}
	a.logger.Info("mcp server listening on stdio")
	return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
