package config

// AppConfig holds the HTTP listener settings
type AppConfig struct {
	Host string `env:"STEPUP_HOST" env-default:"localhost"`
	Port uint16 `env:"STEPUP_PORT" env-default:"4000"`
}
