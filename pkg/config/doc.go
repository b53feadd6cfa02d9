// Package config holds the environment-backed configuration structs shared
// by the service binaries. Each struct maps one concern (database, SMTP,
// JWT, codes, routes) to STEPUP_-prefixed environment variables and is
// loaded with cleanenv.
package config
