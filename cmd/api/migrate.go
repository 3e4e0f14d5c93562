package main

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage/migrations"
	"github.com/ibrahimkeyboad/ezledger/internal/core/config"
)

func migrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Long: `Apply every embedded migration in order against DATABASE_URL.

Migrations are idempotent, so running this on each deploy is safe.

Examples:
  ezledger migrate
  ezledger migrate --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				names, err := migrations.Names()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return errors.New("migrate needs STORAGE=postgres")
			}

			db, err := sql.Open("pgx", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := migrations.Apply(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print migration names without applying them")
	return cmd
}
