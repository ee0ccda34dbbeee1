package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tailfold/snapsync/internal/cryptoutil"
)

const envPrefix = "SNAPSYNC"

// Load reads configuration from a file (optionally encrypted), env vars, and
// defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			if typ := configTypeFromPath(resolved); typ != "" {
				vp.SetConfigType(typ)
			}
			key := os.Getenv("SNAPSYNC_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but SNAPSYNC_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("SNAPSYNC_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"snapsync.yaml",
		"snapsync.yml",
		"snapsync.toml",
		"snapsync.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "snapsync")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range []string{"snapsync.yaml.enc", "snapsync.yml.enc", "snapsync.toml.enc"} {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".toml") || strings.HasSuffix(path, ".toml.enc") || strings.HasSuffix(path, ".toml.encrypted"):
		return "toml"
	case strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.enc") || strings.HasSuffix(path, ".json.encrypted"):
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.operation_timeout", "2h")
	vp.SetDefault("backup.retention_days", 30)
	vp.SetDefault("backup.compression", "gzip")
	vp.SetDefault("backup.retry_count", 1)
	vp.SetDefault("backup.retry_backoff", "10s")
	vp.SetDefault("database.host", "localhost")
	vp.SetDefault("s3.use_ssl", true)
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Global.WorkDir == "" {
		cfg.Global.WorkDir = filepath.Join(os.TempDir(), "snapsync")
	}
	if cfg.Global.LockFile == "" {
		cfg.Global.LockFile = filepath.Join(os.TempDir(), "snapsync.lock")
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 2 * time.Hour
	}
	if cfg.Backup.RetentionDays == 0 {
		cfg.Backup.RetentionDays = 30
	}
	if cfg.Backup.RetryBackoff == 0 {
		cfg.Backup.RetryBackoff = 10 * time.Second
	}
}

func expandEnv(cfg *Config) {
	cfg.Database.Username = os.ExpandEnv(cfg.Database.Username)
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Backup.EncryptionKey = os.ExpandEnv(cfg.Backup.EncryptionKey)
	cfg.S3.AccessKey = os.ExpandEnv(cfg.S3.AccessKey)
	cfg.S3.SecretKey = os.ExpandEnv(cfg.S3.SecretKey)
	cfg.S3.AccessKeyDev = os.ExpandEnv(cfg.S3.AccessKeyDev)
	cfg.S3.SecretKeyDev = os.ExpandEnv(cfg.S3.SecretKeyDev)
	for i := range cfg.Notifications.Webhooks {
		cfg.Notifications.Webhooks[i].URL = os.ExpandEnv(cfg.Notifications.Webhooks[i].URL)
	}
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
