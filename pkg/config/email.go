package config

// EmailConfig holds SMTP settings for outbound verification-code mail
type EmailConfig struct {
	Host     string `env:"STEPUP_EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"STEPUP_EMAIL_PORT" env-default:"1025"`
	TLS      bool   `env:"STEPUP_EMAIL_TLS" env-default:"false"`
	Username string `env:"STEPUP_EMAIL_USERNAME" env-default:""`
	Password string `env:"STEPUP_EMAIL_PASSWORD" env-default:""`
	From     string `env:"STEPUP_EMAIL_FROM" env-default:"noreply@example.com"`
}
