// Package cli provides the forgectl operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"mediaforge/internal/application"
	"mediaforge/internal/config"
	"mediaforge/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	configPath string
	devMode    bool
	verbose    bool

	cfg    *config.Config
	logger *zerolog.Logger
	infra  *application.Infra
)

// needsInfra marks commands that talk to Postgres and Redis.
const needsInfra = "needs-infra"

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Operate the mediaforge job pipeline",
	Long: `forgectl inspects and repairs the generation pipeline: job records,
team credit pools, the outbox and the database schema.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipConfig(cmd) {
			return nil
		}
		var err error
		cfg, err = config.Load(configPath, devMode)
		if err != nil {
			return err
		}
		lc := cfg.Log
		if !verbose {
			lc.Level = "warn"
		}
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), lc, devMode)

		if cmd.Annotations[needsInfra] != "true" {
			return nil
		}
		infra, err = application.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if infra != nil {
			infra.Close()
			infra = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config yaml")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")

	rootCmd.AddCommand(dbCmd, jobsCmd, teamsCmd, usersCmd, tokenCmd, outboxCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func withInfra(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[needsInfra] = "true"
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}
