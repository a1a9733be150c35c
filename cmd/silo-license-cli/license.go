package main

import (
	"encoding/json"
	"fmt"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newActivateCmd(v *viper.Viper) *cobra.Command {
	var key, device, info string

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a device on a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceInfo, err := parseMetadata(info)
			if err != nil {
				return fmt.Errorf("--device-info: %w", err)
			}

			resp, err := newClient(v).Activate(cmd.Context(), dto.ActivateRequest{
				LicenseKey: key,
				DeviceID:   device,
				DeviceInfo: deviceInfo,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Valid {
				return fmt.Errorf("activation rejected: %s", resp.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "License key (required)")
	cmd.Flags().StringVar(&device, "device", "", "Device ID (required)")
	cmd.Flags().StringVar(&info, "device-info", "", "Device fingerprint as a JSON object")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	var key, device string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a device holds a valid activation",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(v).Validate(cmd.Context(), key, device)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Valid {
				return fmt.Errorf("license not valid: %s", resp.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "License key (required)")
	cmd.Flags().StringVar(&device, "device", "", "Device ID (required)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func newRecordCmd(v *viper.Viper) *cobra.Command {
	var key, device, action, metadata string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a usage event",
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMetadata(metadata)
			if err != nil {
				return fmt.Errorf("--metadata: %w", err)
			}

			ok, err := newClient(v).RecordUsage(cmd.Context(), dto.RecordUsageRequest{
				LicenseKey: key,
				DeviceID:   device,
				Action:     action,
				Metadata:   meta,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.RecordUsageResponse{Success: ok})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "License key (required)")
	cmd.Flags().StringVar(&device, "device", "", "Device ID")
	cmd.Flags().StringVar(&action, "action", "", "Action name (required)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Event metadata as a JSON object")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func parseMetadata(raw string) (licenses.Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	var meta licenses.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return meta, nil
}
