package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SILO_LICENSE"

type Config struct {
	Server        string
	AdminKey      string
	ReceiptSecret string
	ReceiptIssuer string
}

// bindConfig lets every persistent flag fall back to SILO_LICENSE_<FLAG>,
// e.g. --admin-key reads SILO_LICENSE_ADMIN_KEY.
func bindConfig(v *viper.Viper, cmd *cobra.Command) error {
	_ = godotenv.Load()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v.BindPFlags(cmd.PersistentFlags())
}

func loadConfig(v *viper.Viper) Config {
	return Config{
		Server:        v.GetString("server"),
		AdminKey:      v.GetString("admin-key"),
		ReceiptSecret: v.GetString("receipt-secret"),
		ReceiptIssuer: v.GetString("receipt-issuer"),
	}
}
