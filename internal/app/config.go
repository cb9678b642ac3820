package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"60s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"120s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// DataDir receives the uploaded workbooks and the persisted journal
	// configuration.
	DataDir        string `envconfig:"DATA_DIR" default:"./data"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"104857600"`

	PurchaseJournals []string `envconfig:"PURCHASE_JOURNALS" default:"ACHAT,ACH"`
	BankJournals     []string `envconfig:"BANK_JOURNALS" default:"BANQUE,BNQ,CHEQUE"`
	PayablePrefix    string   `envconfig:"PAYABLE_PREFIX" default:"4411"`
	EffectsPrefix    string   `envconfig:"EFFECTS_PREFIX" default:"4415"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory must be provided")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
