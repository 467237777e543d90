package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-orchestrator/internal/mcp"
	"github.com/jonathan/resume-orchestrator/internal/server"
	"github.com/jonathan/resume-orchestrator/internal/server/ratelimit"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server exposing run creation, inspection, review
and artifact download, plus the MCP tools at POST /mcp.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if cmd.Flags().Changed("port") {
		a.cfg.Port = servePort
	}
	jwtCfg, err := a.cfg.JWT()
	if err != nil {
		return fmt.Errorf("invalid JWT configuration: %w", err)
	}
	if jwtCfg == nil {
		a.logger.Warn("JWT_SECRET not set; mutating routes are unauthenticated")
	}

	srv, err := server.New(server.Config{
		Addr:            a.cfg.Addr(),
		Service:         a.service,
		RateLimit:       ratelimit.LoadConfig(os.Getenv),
		JWT:             jwtCfg,
		MCP:             mcp.NewServer(a.service, version, a.logger).Handler(),
		Logger:          a.logger,
		ShutdownTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}
