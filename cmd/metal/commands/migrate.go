package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/metal/cmd/metal/handlers"
)

// Migrate returns the command creating or updating the database schema.
func Migrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Migrate creates the project, cluster and node group tables in the
configured database, adding missing columns to existing tables.

Example:
  metal migrate -c metal.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Migrate(cmd.Context(), configPath(cmd), cmd.OutOrStdout())
		},
	}
}
