package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ezledger",
		Short:        "EzLedger - funds transfer ledger API",
		Version:      Version,
		SilenceUsage: true,
		// Running the bare binary starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), "")
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
