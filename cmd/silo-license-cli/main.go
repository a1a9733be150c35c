// Package main is the entrypoint for the silo-license command line client.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/EternisAI/silo-license/internal/client"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var AppVersion = "dev"

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "silo-license",
		Short: "Client for the silo license server",
		Long: `silo-license talks to a running license server.

Flags fall back to SILO_LICENSE_* environment variables, for example
SILO_LICENSE_SERVER and SILO_LICENSE_ADMIN_KEY.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(v, cmd.Root())
		},
	}

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "License server URL")
	rootCmd.PersistentFlags().String("admin-key", "", "Admin API key for admin commands")
	rootCmd.PersistentFlags().String("receipt-secret", "", "Secret used to verify activation receipts")
	rootCmd.PersistentFlags().String("receipt-issuer", receipt.DefaultIssuer, "Expected receipt issuer")

	rootCmd.AddCommand(
		newVersionCmd(),
		newActivateCmd(v),
		newValidateCmd(v),
		newRecordCmd(v),
		newAdminCmd(v),
		newReceiptCmd(v),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "silo-license %s\n", AppVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newClient(v *viper.Viper) *client.Client {
	cfg := loadConfig(v)
	return client.New(cfg.Server, client.WithAdminKey(cfg.AdminKey))
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
