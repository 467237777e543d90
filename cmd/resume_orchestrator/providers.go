package main

import (
	"context"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and whether their credentials are configured",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(context.Background(), appOptions{logOut: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return writeJSON(cmd.OutOrStdout(), a.service.Providers())
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store, compiler, resume and provider readiness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{logOut: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close(ctx)
		return writeJSON(cmd.OutOrStdout(), a.service.Health(ctx))
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(healthCmd)
}
