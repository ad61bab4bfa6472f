package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply the embedded schema migrations for the configured store driver.

Migrations already recorded in schema_migrations are skipped, so the
command is safe to rerun. The memory driver has nothing to migrate.

Examples:
  minishop-orders migrate --store-driver sqlite --store-dsn data/orders.db
  STORE_DRIVER=postgres STORE_DSN=postgres://... minishop-orders migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				applied, err := a.store.migrate(ctx)
				if err != nil {
					return fmt.Errorf("migrate %s: %w", a.store.driver, err)
				}
				out := cmd.OutOrStdout()
				if len(applied) == 0 {
					fmt.Fprintln(out, "no pending migrations")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintf(out, "applied %s\n", name)
				}
				return nil
			})
		},
	}
}
