package cli

import (
	"fmt"

	pg "mediaforge/internal/infra/db/postgres"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database schema commands",
}

var dbMigrateCmd = withInfra(&cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := pg.Migrate(cmd.Context(), infra.Pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
})

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema SQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), pg.Schema())
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd, dbSchemaCmd)
}
