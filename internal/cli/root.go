// Package cli implements the uploader command line client.
package cli

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/plc-visualizer/uploader/internal/config"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// v holds flag and UPLOADER_* environment values; they override the XML file.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "uploader",
	Short:         "File transfer client",
	Long:          "Validates files against the upload policy and transfers them to the configured storage backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(v.GetString("log-level"))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// .env is optional
	_ = godotenv.Load()

	v.SetEnvPrefix("UPLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("config", "uploader.config", "Path to the XML configuration file")
	flags.String("server", "", "Transfer server URL")
	flags.String("backend", "", "Storage backend: mock, local, chunked, minio")
	flags.String("org", "", "Organization the files belong to")
	flags.String("realtime", "", "Realtime channel: none, hub, websocket, redis")
	flags.String("user-id", "", "User recorded on each file")
	flags.String("user-email", "", "User email recorded on each file")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newPolicyCmd())
}

// loadConfig reads the XML configuration and applies flag/env overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if s := v.GetString("server"); s != "" {
		cfg.Client.ServerURL = s
	}
	if s := v.GetString("backend"); s != "" {
		cfg.Client.Backend = s
	}
	if s := v.GetString("org"); s != "" {
		cfg.Client.Org = s
	}
	if s := v.GetString("realtime"); s != "" {
		cfg.Client.Realtime.Kind = s
	}
	if s := v.GetString("user-id"); s != "" {
		cfg.Client.UserID = s
	}
	if s := v.GetString("user-email"); s != "" {
		cfg.Client.UserEmail = s
	}
	return cfg, nil
}
