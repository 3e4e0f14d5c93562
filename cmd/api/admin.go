package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/ezledger/internal/core/config"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/security"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var displayName string
	create := &cobra.Command{
		Use:   "create [username]",
		Short: "Create an admin account and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return errors.New("admin create needs STORAGE=postgres; use serve --bootstrap-admin with memory storage")
			}
			dbPool, err := storage.ConnectDB(cmd.Context(), cfg.DatabaseURL, 2)
			if err != nil {
				return err
			}
			defer dbPool.Close()

			return createAdminNamed(cmd.Context(), storage.NewStore(dbPool), args[0], displayName, func(key string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Admin %s created.\nAPI key (shown once): %s\n", args[0], key)
			})
		},
	}
	create.Flags().StringVar(&displayName, "display-name", "", "display name (defaults to the username)")
	cmd.AddCommand(create)
	return cmd
}

func createAdmin(ctx context.Context, repo handler.AccountRegistry, username string, show func(key string)) error {
	return createAdminNamed(ctx, repo, username, "", show)
}

// createAdminNamed creates an ADMIN account plus one API key. show receives the
// plain key, which is never stored.
func createAdminNamed(ctx context.Context, repo handler.AccountRegistry, username, displayName string, show func(key string)) error {
	if err := handler.ValidateUsername(username); err != nil {
		return err
	}
	if displayName == "" {
		displayName = username
	}
	acct, err := repo.CreateAccount(ctx, username, displayName, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	key, hash, prefix, err := security.GenerateAPIKey()
	if err != nil {
		return err
	}
	if err := repo.SaveAPIKey(ctx, acct.ID, hash, prefix); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	show(key)
	return nil
}
