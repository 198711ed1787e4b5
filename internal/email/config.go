package email

import (
	"time"

	"messaging_backend/internal/config"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool
	Timeout   time.Duration
}

func DefaultConfig() *SMTPConfig {
	return &SMTPConfig{
		Host:      "localhost",
		Port:      587,
		FromEmail: "noreply@messaging.local",
		FromName:  "Messaging",
		UseTLS:    true,
		Timeout:   30 * time.Second,
	}
}

// ConfigFrom builds the SMTP settings from the email section of the app config.
func ConfigFrom(cfg *config.Config) *SMTPConfig {
	smtpCfg := DefaultConfig()
	smtpCfg.Host = cfg.Email.SMTPHost
	if cfg.Email.SMTPPort != 0 {
		smtpCfg.Port = cfg.Email.SMTPPort
	}
	smtpCfg.Username = cfg.Email.SMTPUsername
	smtpCfg.Password = cfg.Email.SMTPPassword
	if cfg.Email.FromEmail != "" {
		smtpCfg.FromEmail = cfg.Email.FromEmail
	}
	if cfg.Email.FromName != "" {
		smtpCfg.FromName = cfg.Email.FromName
	}
	smtpCfg.UseTLS = cfg.Email.UseTLS
	return smtpCfg
}
