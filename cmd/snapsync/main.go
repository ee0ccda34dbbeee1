package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tailfold/snapsync/internal/app"
	"github.com/tailfold/snapsync/internal/config"
	"github.com/tailfold/snapsync/internal/db"
	"github.com/tailfold/snapsync/internal/logging"
	"github.com/tailfold/snapsync/internal/notify"
	"github.com/tailfold/snapsync/internal/storage"
	"github.com/tailfold/snapsync/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Service       string
	Paths         []string
	Databases     []string
	DBHost        string
	DBUser        string
	DBPassword    string
	S3AccessKey   string
	S3SecretKey   string
	S3Primary     string
	S3Secondary   string
	S3Region      string
	S3UseSSL      string
	S3PathStyle   string
	RetentionDays int
	Compression   string
	EncryptionKey string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:   "snapsync",
		Short: "Snapshot, replicate and restore service state across S3 regions",
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.Service, "service", "", "Service name (bucket prefix)")
	rootCmd.PersistentFlags().StringSliceVar(&overrides.Paths, "path", nil, "Filesystem path to include (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&overrides.Databases, "database", nil, "Database to include (repeatable)")
	rootCmd.PersistentFlags().StringVar(&overrides.DBHost, "db-host", "", "Database host")
	rootCmd.PersistentFlags().StringVar(&overrides.DBUser, "db-user", "", "Database username")
	rootCmd.PersistentFlags().StringVar(&overrides.DBPassword, "db-password", "", "Database password")
	rootCmd.PersistentFlags().StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Primary, "s3-primary", "", "Primary region endpoint")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Secondary, "s3-secondary", "", "Secondary region endpoint")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Region, "s3-region", "", "S3 signing region")
	rootCmd.PersistentFlags().StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoints (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().IntVar(&overrides.RetentionDays, "retention-days", 0, "Retention window in days")
	rootCmd.PersistentFlags().StringVar(&overrides.Compression, "compression", "", "Compression (none/gzip/zstd)")
	rootCmd.PersistentFlags().StringVar(&overrides.EncryptionKey, "encryption-key", "", "Encryption key (base64 or hex) for bundles")

	rootCmd.AddCommand(newBackupCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newShowCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newBackupCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var env string
	var encrypt bool
	var retry int
	var retryBackoff time.Duration

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Build a snapshot, publish it to every region, prune expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides, env)
			if err != nil {
				return err
			}
			if encrypt {
				cfg.Backup.Encryption = true
			}
			if retry > 0 {
				cfg.Backup.RetryCount = retry
			}
			if retryBackoff > 0 {
				cfg.Backup.RetryBackoff = retryBackoff
			}

			appSvc, logger, err := buildApp(cfg, env)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			id, err := appSvc.Backup(ctx)
			if err != nil {
				return err
			}
			logger.Info().Str("snapshot", id.String()).Msg("backup completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&env, "env", "", "Target environment (dev or prod)")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Enable bundle encryption")
	cmd.Flags().IntVar(&retry, "retry", 0, "Upload retry attempts")
	cmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 0, "Upload retry backoff")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var env string
	var at string
	var hook string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore paths and databases from a published snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides, env)
			if err != nil {
				return err
			}
			appSvc, logger, err := buildApp(cfg, env)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			if err := appSvc.Restore(ctx, at, hook); err != nil {
				return err
			}
			logger.Info().Str("snapshot", at).Msg("restore completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&env, "env", "", "Target environment (dev or prod)")
	cmd.Flags().StringVar(&at, "at", "latest", "Restore point (snapshot identifier or latest)")
	cmd.Flags().StringVar(&hook, "hook", "", "Command to run after a successful restore")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func newShowCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the restore points available in the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides, env)
			if err != nil {
				return err
			}
			appSvc, _, err := buildApp(cfg, env)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			points, err := appSvc.Show(ctx)
			if err != nil {
				return err
			}
			for _, point := range points {
				fmt.Println(point)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&env, "env", "", "Target environment (dev or prod)")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snapsync %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func loadConfig(root *rootFlags, overrides *overrideFlags, env string) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	if err := cfg.Validate(env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp wires the collaborators for one run. Without database credentials
// the run is files-only.
func buildApp(cfg *config.Config, env string) (*app.App, zerolog.Logger, error) {
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	var client db.Client
	if cfg.Database.Username != "" {
		mariadb, err := db.NewMariaDB(cfg.Database)
		if err != nil {
			return nil, logger, err
		}
		client = mariadb
	}

	accessKey, secretKey := cfg.Credentials(env)
	dial := func(endpoint string) (storage.Store, error) {
		return storage.NewS3(storage.S3Options{
			Endpoint:        endpoint,
			AccessKey:       accessKey,
			SecretKey:       secretKey,
			SigningRegion:   cfg.S3.SigningRegion,
			UseSSL:          cfg.S3.UseSSL,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			TLSInsecureSkip: cfg.S3.TLSInsecureSkip,
		})
	}

	return app.New(cfg, env, client, dial, logger, notify.FromConfig(cfg.Notifications)), logger, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.Service != "" {
		cfg.Service.Name = overrides.Service
	}
	if len(overrides.Paths) > 0 {
		cfg.Backup.Paths = overrides.Paths
	}
	if len(overrides.Databases) > 0 {
		cfg.Backup.Databases = overrides.Databases
	}
	if overrides.DBHost != "" {
		cfg.Database.Host = overrides.DBHost
	}
	if overrides.DBUser != "" {
		cfg.Database.Username = overrides.DBUser
	}
	if overrides.DBPassword != "" {
		cfg.Database.Password = overrides.DBPassword
	}

	if overrides.S3AccessKey != "" {
		cfg.S3.AccessKey = overrides.S3AccessKey
		cfg.S3.AccessKeyDev = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.S3.SecretKey = overrides.S3SecretKey
		cfg.S3.SecretKeyDev = overrides.S3SecretKey
	}
	if overrides.S3Primary != "" {
		cfg.S3.Endpoints.Primary = overrides.S3Primary
	}
	if overrides.S3Secondary != "" {
		cfg.S3.Endpoints.Secondary = overrides.S3Secondary
	}
	if overrides.S3Region != "" {
		cfg.S3.SigningRegion = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.S3.UseSSL = strings.EqualFold(overrides.S3UseSSL, "true") || overrides.S3UseSSL == "1"
	}
	if overrides.S3PathStyle != "" {
		cfg.S3.ForcePathStyle = strings.EqualFold(overrides.S3PathStyle, "true") || overrides.S3PathStyle == "1"
	}

	if overrides.RetentionDays > 0 {
		cfg.Backup.RetentionDays = overrides.RetentionDays
	}
	if overrides.Compression != "" {
		cfg.Backup.Compression = strings.ToLower(overrides.Compression)
	}
	if overrides.EncryptionKey != "" {
		cfg.Backup.EncryptionKey = overrides.EncryptionKey
	}

	cfg.Backup.Compression = strings.ToLower(cfg.Backup.Compression)
}
