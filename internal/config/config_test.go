package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Service.Name = "wordpress"
	cfg.S3.AccessKey = "prod-access"
	cfg.S3.SecretKey = "prod-secret"
	cfg.S3.AccessKeyDev = "dev-access"
	cfg.S3.SecretKeyDev = "dev-secret"
	cfg.S3.Endpoints.Primary = "s3.gra.example.net"
	cfg.S3.Endpoints.Secondary = "s3.sbg.example.net"
	return cfg
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(EnvProd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(EnvDev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownEnv(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate("staging"); !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}
}

func TestValidateMissingCredentialsPerEnv(t *testing.T) {
	cfg := validConfig()
	cfg.S3.AccessKeyDev = ""
	if err := cfg.Validate(EnvProd); err != nil {
		t.Fatalf("prod should not need dev keys: %v", err)
	}
	if err := cfg.Validate(EnvDev); !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting for dev, got %v", err)
	}
}

func TestValidateCollectsAllMissing(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate(EnvProd)
	if !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}
	for _, want := range []string{"service.name", "s3 access key", "s3 secret key", "s3.regions.primary"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestCredentialsSelection(t *testing.T) {
	cfg := validConfig()
	access, secret := cfg.Credentials(EnvDev)
	if access != "dev-access" || secret != "dev-secret" {
		t.Fatalf("unexpected dev credentials: %s/%s", access, secret)
	}
	access, secret = cfg.Credentials(EnvProd)
	if access != "prod-access" || secret != "prod-secret" {
		t.Fatalf("unexpected prod credentials: %s/%s", access, secret)
	}
}
