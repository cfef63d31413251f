package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			// Open applies every pending migration.
			db, err := sqlitedb.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			v, err := sqlitedb.Version(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s at version %d\n", cfg.Database.Path, v)
			return nil
		},
	}
}
