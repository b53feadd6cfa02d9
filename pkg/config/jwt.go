package config

// JwtConfig holds the signing settings for session bearer tokens
type JwtConfig struct {
	Secret   string `env:"STEPUP_JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer   string `env:"STEPUP_JWT_ISSUER" env-default:"stepup-mfa"`
	Audience string `env:"STEPUP_JWT_AUDIENCE" env-default:"stepup-mfa"`
}
