package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-orchestrator/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Long:  "Issue a bearer token signed with JWT_SECRET for the authenticated HTTP routes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jwtCfg, err := cfg.JWT()
		if err != nil {
			return fmt.Errorf("invalid JWT configuration: %w", err)
		}
		if jwtCfg == nil {
			return fmt.Errorf("JWT_SECRET is not configured")
		}
		token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "Token subject")
	rootCmd.AddCommand(tokenCmd)
}
