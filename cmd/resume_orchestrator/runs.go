package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-orchestrator/internal/service"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{logOut: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		list, err := a.service.ListRuns(ctx, service.ListQuery{
			Status: runsStatus,
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), list)
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run with all stage results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{logOut: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		run, err := a.service.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), run)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs in this status")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "Maximum runs to return (1-100)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	rootCmd.AddCommand(runsCmd)
}
