// Package config resolves the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultEndpoint is the base URL of the remote media API.
const DefaultEndpoint = "https://api.cloudinary.com/v1_1"

// Cloud holds the remote media API credentials.
type Cloud struct {
	Endpoint  string `env:"UPLOAD_ENDPOINT" env-default:"https://api.cloudinary.com/v1_1" env-description:"base URL of the media API"`
	Namespace string `env:"CLOUD_NAMESPACE" env-required:"true" env-description:"account namespace (cloud name)"`
	APIKey    string `env:"API_KEY" env-required:"true" env-description:"API key sent with every upload"`
	APISecret string `env:"API_SECRET" env-required:"true" env-description:"secret used to sign uploads"`
}

type Config struct {
	Addr         string        `env:"ADDR" env-default:":8080" env-description:"web server address"`
	CertFile     string        `env:"CERT_FILE" env-description:"path of TLS certificate file"`
	KeyFile      string        `env:"CERT_KEY" env-description:"path of TLS private key file"`
	TempDir      string        `env:"UPLOAD_TEMP_DIR" env-description:"directory for transient upload files"`
	RelayTimeout time.Duration `env:"RELAY_TIMEOUT" env-default:"60s" env-description:"timeout of the outbound upload request"`
	LogLevel     string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat    string        `env:"LOG_FORMAT" env-default:"json"`
	LedgerTable  string        `env:"UPLOAD_LEDGER_TABLE" env-description:"DynamoDB table recording uploads, disabled when empty"`
	AWSRegion    string        `env:"AWS_REGION"`
	Cloud        Cloud
}

// Load reads the configuration from envFile, when it exists, and then from the
// process environment. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	var cfg Config
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := cleanenv.ReadConfig(envFile, &cfg); err != nil {
				return nil, fmt.Errorf("cannot read config file %s: %w", envFile, err)
			}
			return &cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read config from environment: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate rejects configurations the relay cannot work with.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Cloud.Namespace) == "" {
		missing = append(missing, "CLOUD_NAMESPACE")
	}
	if strings.TrimSpace(c.Cloud.APIKey) == "" {
		missing = append(missing, "API_KEY")
	}
	if c.Cloud.APISecret == "" {
		missing = append(missing, "API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	u, err := url.Parse(c.Cloud.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid UPLOAD_ENDPOINT %q", c.Cloud.Endpoint)
	}
	if c.RelayTimeout <= 0 {
		return fmt.Errorf("RELAY_TIMEOUT must be positive, got %s", c.RelayTimeout)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("both CERT_FILE and CERT_KEY must be provided")
	}
	return nil
}

// LogValue keeps credentials out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Addr),
		slog.String("endpoint", c.Cloud.Endpoint),
		slog.String("namespace", c.Cloud.Namespace),
		slog.Bool("tls", c.CertFile != ""),
		slog.Duration("relay_timeout", c.RelayTimeout),
		slog.String("ledger_table", c.LedgerTable),
	)
}

// Usage describes the environment variables understood by Load.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
