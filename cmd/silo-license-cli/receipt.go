package main

import (
	"fmt"

	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReceiptCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Work with activation receipts",
	}
	cmd.AddCommand(newReceiptVerifyCmd(v))
	return cmd
}

func newReceiptVerifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <receipt>",
		Short: "Verify a receipt offline and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			signer, err := receipt.NewSigner(receipt.Config{
				Secret: cfg.ReceiptSecret,
				Issuer: cfg.ReceiptIssuer,
			})
			if err != nil {
				return err
			}

			claims, err := signer.Verify(args[0])
			if err != nil {
				return fmt.Errorf("receipt rejected: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}
}
