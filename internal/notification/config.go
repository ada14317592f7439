// internal/notification/config.go
package notification

import appconfig "autohaven/internal/common/config"

type Config struct {
	FromEmail string
	Subject   string
	AWSRegion string
}

func ConfigFromApp(cfg *appconfig.Config) *Config {
	return &Config{
		FromEmail: cfg.Notifier.FromEmail,
		Subject:   cfg.Notifier.Subject,
		AWSRegion: cfg.Notifier.AWSRegion,
	}
}
