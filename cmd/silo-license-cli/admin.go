package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAdminCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage licenses (requires --admin-key)",
	}

	cmd.AddCommand(
		newAdminCreateCmd(v),
		newAdminListCmd(v),
		newAdminGetCmd(v),
		newAdminSetActiveCmd(v, "deactivate", "Disable a license"),
		newAdminSetActiveCmd(v, "reactivate", "Re-enable a deactivated license"),
		newAdminUsageCmd(v),
		newAdminHashSecretCmd(),
	)

	return cmd
}

func newAdminCreateCmd(v *viper.Viper) *cobra.Command {
	var req dto.CreateLicenseRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new license",
		RunE: func(cmd *cobra.Command, args []string) error {
			lic, err := newClient(v).CreateLicense(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lic)
		},
	}

	cmd.Flags().StringVar(&req.CustomerEmail, "email", "", "Customer email (required)")
	cmd.Flags().StringVar(&req.CustomerName, "name", "", "Customer name (required)")
	cmd.Flags().StringVar(&req.PlanType, "plan", "", "Plan type")
	cmd.Flags().IntVar(&req.DurationMonths, "months", 0, "Duration in months (server default when 0)")
	cmd.Flags().IntVar(&req.MaxActivations, "max-activations", 0, "Device limit (server default when 0)")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newAdminListCmd(v *viper.Viper) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient(v).ListLicenses(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size (max 100)")

	return cmd
}

func newAdminGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <license-key>",
		Short: "Show one license with its activations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lic, err := newClient(v).GetLicense(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lic)
		},
	}
}

func newAdminSetActiveCmd(v *viper.Viper, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <license-key>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(v)
			var (
				lic *dto.LicenseResponse
				err error
			)
			if use == "deactivate" {
				lic, err = c.DeactivateLicense(cmd.Context(), args[0])
			} else {
				lic, err = c.ReactivateLicense(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lic)
		},
	}
}

func newAdminUsageCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show usage event counts per license",
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := newClient(v).UsageSummary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), usage)
		},
	}
}

func newAdminHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Print a bcrypt hash for http.admin_api_key_hash",
		Long: `Print a bcrypt hash of an admin secret for use as http.admin_api_key_hash.

The secret is read from stdin when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimSpace(line)
			}
			if secret == "" {
				return fmt.Errorf("secret cannot be empty")
			}

			hash, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
