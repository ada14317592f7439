// internal/enrichment/config.go
package enrichment

import (
	"time"

	appconfig "autohaven/internal/common/config"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

func ConfigFromApp(cfg *appconfig.Config) *Config {
	return &Config{
		BaseURL:     cfg.Generator.BaseURL,
		APIKey:      cfg.Generator.APIKey,
		Model:       cfg.Generator.Model,
		MaxTokens:   cfg.Generator.MaxTokens,
		Temperature: cfg.Generator.Temperature,
		Timeout:     appconfig.GetDuration(cfg.Generator.Timeout),
		MaxRetries:  cfg.Generator.MaxRetries,
		BackoffBase: appconfig.GetDuration(cfg.Generator.BackoffBase),
	}
}
