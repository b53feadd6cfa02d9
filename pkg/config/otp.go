package config

// OtpConfig tunes the lifetime and resend cooldown of emailed one-time codes
type OtpConfig struct {
	ExpirySeconds   int `env:"STEPUP_OTP_EXPIRY_SECONDS" env-default:"300"`
	CooldownSeconds int `env:"STEPUP_OTP_COOLDOWN_SECONDS" env-default:"60"`
}
