package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/config"
	"github.com/edubill-dev/edubill/internal/store/postgres"
	"github.com/edubill-dev/edubill/internal/workspace"
)

func newDBCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the PostgreSQL store",
	}
	cmd.AddCommand(newDBMigrateCommand(g), newDBImportCommand(g))
	return cmd
}

func openDatabase(g *globalFlags) (*postgres.Store, *workspace.Workspace, error) {
	root, err := workspaceRoot(g)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Open(root)
	if err != nil {
		return nil, nil, err
	}
	envFile := g.envFile
	if envFile != "" && !filepath.IsAbs(envFile) {
		envFile = filepath.Join(root, envFile)
	}
	if err := config.ApplyEnv(ws.Config, envFile); err != nil {
		return nil, nil, err
	}
	if ws.Config.Store.DSN == "" {
		return nil, nil, fmt.Errorf("no database configured: set store.dsn or %s", config.EnvDSN)
	}
	db, err := postgres.Open(ws.Config.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, ws, nil
}

func newDBMigrateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(g)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date")
			return nil
		},
	}
}

func newDBImportCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the workspace data files into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, ws, err := openDatabase(g)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			stats, err := db.Import(cmd.Context(), ws.Store.Snapshot())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Imported %d account(s), %d holder(s), %d course(s), %d enrollment(s), %d charge(s), %d entry(ies), %d batch(es)\n",
				stats.Accounts, stats.Holders, stats.Courses, stats.Enrollments, stats.Charges, stats.Entries, stats.Batches)
			return nil
		},
	}
}
