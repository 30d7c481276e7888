// Package config reads the signing service configuration from the
// environment, optionally layered over a YAML, JSON, TOML or .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
)

// Config is the complete process configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Signer SignerConfig `yaml:"signer"`
	HMAC   HMACConfig   `yaml:"hmac"`
	DB     DBConfig     `yaml:"db"`
}

type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development" env-description:"Runtime environment"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET" env-description:"HS256 secret; when set every API call needs a bearer JWT"`
}

type SignerConfig struct {
	CredentialsFile string        `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS" env-description:"Service account JSON key file"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"SIGNER_TOKEN_TTL" env-default:"1h" env-description:"Lifetime requested for access tokens"`
	TokenRenew      time.Duration `yaml:"token_renew" env:"SIGNER_TOKEN_RENEW" env-default:"5m" env-description:"Renew access tokens this long before they expire"`
	Scope           string        `yaml:"scope" env:"SIGNER_SCOPE" env-default:"https://www.googleapis.com/auth/cloud-platform" env-description:"OAuth2 scope of access tokens; signing through SIGNER_IAM_ACCOUNT needs cloud-platform or iam"`
	HostTemplate    string        `yaml:"host_template" env:"SIGNER_HOST_TEMPLATE" env-default:"%s.storage.googleapis.com" env-description:"Host of signed URLs, %s is the bucket"`
	IAMAccount      string        `yaml:"iam_account" env:"SIGNER_IAM_ACCOUNT" env-description:"Sign through IAM signBlob as this service account instead of the local key"`
}

type HMACConfig struct {
	AccessID string        `yaml:"access_id" env:"HMAC_ACCESS_ID" env-description:"HMAC key access id for XML API URLs"`
	Secret   string        `yaml:"secret" env:"HMAC_SECRET" env-description:"HMAC key secret"`
	Bucket   string        `yaml:"bucket" env:"HMAC_BUCKET" env-description:"Bucket HMAC URLs are issued for"`
	Expires  time.Duration `yaml:"expires" env:"HMAC_EXPIRES" env-default:"15m" env-description:"Lifetime of HMAC URLs"`
}

type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL" env-description:"postgres:// URL of the issuance ledger; empty or memory keeps it in memory"`
}

// Load reads configuration from path, when given, and then the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage describes every environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// signBlob accepts only these two scopes
const iamScope = "https://www.googleapis.com/auth/iam"

func (s SignerConfig) allowsSignBlob() bool {
	for _, scope := range strings.Fields(s.Scope) {
		if scope == auth.DefaultScope || scope == iamScope {
			return true
		}
	}
	return false
}

// Validate enforces required fields and combinations.
func (c *Config) Validate() error {
	var errs []error

	if c.Signer.CredentialsFile == "" {
		errs = append(errs, errors.New("GOOGLE_APPLICATION_CREDENTIALS is required"))
	}
	if c.Signer.TokenTTL <= 0 {
		errs = append(errs, errors.New("SIGNER_TOKEN_TTL must be positive"))
	}
	if c.Signer.TokenRenew < 0 || c.Signer.TokenRenew >= c.Signer.TokenTTL {
		errs = append(errs, errors.New("SIGNER_TOKEN_RENEW must be non-negative and shorter than SIGNER_TOKEN_TTL"))
	}
	if strings.Count(c.Signer.HostTemplate, "%s") != 1 {
		errs = append(errs, fmt.Errorf("SIGNER_HOST_TEMPLATE %q must contain exactly one %%s", c.Signer.HostTemplate))
	}
	if c.Signer.IAMAccount != "" && !c.Signer.allowsSignBlob() {
		errs = append(errs, fmt.Errorf("SIGNER_SCOPE %q cannot call IAM signBlob for SIGNER_IAM_ACCOUNT; use %s or %s",
			c.Signer.Scope, auth.DefaultScope, iamScope))
	}
	if c.HMAC.Enabled() || c.HMAC.Secret != "" || c.HMAC.Bucket != "" {
		if c.HMAC.AccessID == "" || c.HMAC.Secret == "" || c.HMAC.Bucket == "" {
			errs = append(errs, errors.New("HMAC_ACCESS_ID, HMAC_SECRET and HMAC_BUCKET must be set together"))
		}
	}
	if _, err := c.DB.Type(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Server.Level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Enabled reports whether HMAC URLs are configured.
func (h HMACConfig) Enabled() bool {
	return h.AccessID != ""
}

// Type returns "memory" or "postgres".
func (d DBConfig) Type() (string, error) {
	switch {
	case d.URL == "" || d.URL == "memory":
		return "memory", nil
	case strings.HasPrefix(d.URL, "postgres://"), strings.HasPrefix(d.URL, "postgresql://"):
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported DATABASE_URL format (use 'memory' or 'postgresql://...')")
}

// Level parses LOG_LEVEL.
func (s ServerConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s.LogLevel)
	}
	return level, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}
