package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/bayneri/slareport/internal/config"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/monitoring"
)

func init() {
	cobra.OnInitialize(initEnv)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "slareport",
		Short: "SLA compliance reports from Cloud Monitoring request metrics",
		Long: `slareport evaluates per-minute request and error counts from Cloud Monitoring
and reports uptime and downtime minutes for Cloud Run, Cloud Storage, BigQuery,
load balancer and Cloud Functions targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "server configuration file (overrides SLAREPORT_CONFIG)")
	flags.String("log-level", "", "log level (overrides log.level)")
	flags.String("log-format", "", "log format, text or json (overrides log.format)")
	flags.String("credentials-file", "", "service account key for Cloud Monitoring and Cloud Storage")
	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("credentials_file", flags.Lookup("credentials-file"))

	root.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newPlanCommand(),
		newTypesCommand(),
		newExplainCommand(),
		newReportCommand(),
		newVersionCommand(),
	)
	return root
}

func initEnv() {
	viper.SetEnvPrefix("SLAREPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the configuration file if one is given, applies flag and
// environment overrides and configures the standard logger.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := map[string]*string{
		"addr":             &cfg.Server.Addr,
		"store_backend":    &cfg.Store.Backend,
		"store_bucket":     &cfg.Store.Bucket,
		"store_prefix":     &cfg.Store.Prefix,
		"log_level":        &cfg.Log.Level,
		"log_format":       &cfg.Log.Format,
		"credentials_file": &cfg.GCP.CredentialsFile,
	}
	for key, target := range overrides {
		if value := viper.GetString(key); viper.IsSet(key) && value != "" {
			*target = value
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := cfg.ConfigureLogger(logrus.StandardLogger()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.GCP.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCP.CredentialsFile)}
}

func newSource(ctx context.Context, cfg *config.Config) (*monitoring.GCPSource, error) {
	return monitoring.NewGCPSource(ctx, clientOptions(cfg)...)
}

// newStore returns the configured job store and a function releasing it.
func newStore(ctx context.Context, cfg *config.Config) (jobs.Store, func() error, error) {
	switch cfg.Store.Backend {
	case config.BackendGCS:
		store, err := jobs.NewGCSStore(ctx, cfg.Store.Bucket, cfg.Store.Prefix, clientOptions(cfg)...)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return jobs.NewMemoryStore(), func() error { return nil }, nil
	}
}
