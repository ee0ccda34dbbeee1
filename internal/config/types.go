package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Environment selectors accepted on the command line.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// ErrMissingSetting marks configuration errors detected before any side
// effect is taken.
var ErrMissingSetting = errors.New("missing mandatory setting")

// Config is the root configuration schema. It is resolved once at startup
// and passed by reference into each component; nothing reads process state
// after this point.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Service       ServiceConfig       `mapstructure:"service"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Restore       RestoreConfig       `mapstructure:"restore"`
	Database      DatabaseConfig      `mapstructure:"database"`
	S3            S3Config            `mapstructure:"s3"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	WorkDir          string        `mapstructure:"work_dir"`
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

type BackupConfig struct {
	Paths         []string      `mapstructure:"paths"`
	Databases     []string      `mapstructure:"databases"`
	RetentionDays int           `mapstructure:"retention_days"`
	Compression   string        `mapstructure:"compression"` // gzip, zstd, none
	Encryption    bool          `mapstructure:"encryption"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type RestoreConfig struct {
	// AllowedRoot, when set, rejects restore paths outside it before any
	// destructive removal.
	AllowedRoot string `mapstructure:"allowed_root"`
	Hook        string `mapstructure:"hook"`
}

type DatabaseConfig struct {
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Host              string        `mapstructure:"host"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

type S3Config struct {
	AccessKey       string          `mapstructure:"access_key"`
	SecretKey       string          `mapstructure:"secret_key"`
	AccessKeyDev    string          `mapstructure:"access_key_dev"`
	SecretKeyDev    string          `mapstructure:"secret_key_dev"`
	Endpoints       RegionEndpoints `mapstructure:"regions"`
	SigningRegion   string          `mapstructure:"signing_region"`
	UseSSL          bool            `mapstructure:"use_ssl"`
	ForcePathStyle  bool            `mapstructure:"force_path_style"`
	TLSInsecureSkip bool            `mapstructure:"tls_insecure_skip"`
}

type RegionEndpoints struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
}

type NotificationsConfig struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// Credentials returns the storage key pair for the selected environment.
func (c *Config) Credentials(env string) (accessKey, secretKey string) {
	if env == EnvDev {
		return c.S3.AccessKeyDev, c.S3.SecretKeyDev
	}
	return c.S3.AccessKey, c.S3.SecretKey
}

// Validate reports every missing mandatory setting at once, before any side
// effect is taken.
func (c *Config) Validate(env string) error {
	if env != EnvDev && env != EnvProd {
		return fmt.Errorf("%w: environment must be %q or %q, got %q", ErrMissingSetting, EnvDev, EnvProd, env)
	}

	var missing []string
	if c.Service.Name == "" {
		missing = append(missing, "service.name")
	}
	access, secret := c.Credentials(env)
	if access == "" {
		missing = append(missing, "s3 access key for "+env)
	}
	if secret == "" {
		missing = append(missing, "s3 secret key for "+env)
	}
	if c.S3.Endpoints.Primary == "" {
		missing = append(missing, "s3.regions.primary")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}
