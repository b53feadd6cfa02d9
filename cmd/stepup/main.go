package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/stepup-mfa/pkg/assurance"
	"github.com/tendant/stepup-mfa/pkg/config"
	"github.com/tendant/stepup-mfa/pkg/enrollment"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"github.com/tendant/stepup-mfa/pkg/mfaapi"
	"github.com/tendant/stepup-mfa/pkg/notice"
	"github.com/tendant/stepup-mfa/pkg/notification"
	"github.com/tendant/stepup-mfa/pkg/otpcode"
	"github.com/tendant/stepup-mfa/pkg/passwordreset"
	"github.com/tendant/stepup-mfa/pkg/profile"
	"github.com/tendant/stepup-mfa/pkg/ratelimit"
	"github.com/tendant/stepup-mfa/pkg/token"
	"github.com/tendant/stepup-mfa/pkg/verification"
)

type Config struct {
	AppConfig      config.AppConfig
	DatabaseConfig config.DatabaseConfig
	EmailConfig    config.EmailConfig
	JwtConfig      config.JwtConfig
	OtpConfig      config.OtpConfig
	RouteConfig    config.RouteConfig
}

// loadEnvFile loads the .env next to the working directory if present.
func loadEnvFile() {
	envFile := filepath.Join(".", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("Failed to load .env file", "err", err)
		} else {
			slog.Info("Loaded environment from .env file")
		}
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	dbURL := cfg.DatabaseConfig.ToDatabaseURL()
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		slog.Error("Failed to create database pool", "err", err)
		os.Exit(-1)
	}
	defer pool.Close()

	notificationManager, err := notice.NewNotificationManager(
		notice.WithSMTP(notification.SMTPConfig{
			Host:     cfg.EmailConfig.Host,
			Port:     cfg.EmailConfig.Port,
			TLS:      cfg.EmailConfig.TLS,
			Username: cfg.EmailConfig.Username,
			Password: cfg.EmailConfig.Password,
			From:     cfg.EmailConfig.From,
		}),
		notice.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "err", err)
		os.Exit(-1)
	}

	accounts, err := profile.NewAccountRepository("postgres", profile.RepositoryConfig{Pool: pool})
	if err != nil {
		slog.Error("Failed to create account repository", "err", err)
		os.Exit(-1)
	}
	codeRepo := otpcode.NewPostgresCodeRepository(pool)

	// Factor storage is served by the built-in provider; accounts and
	// codes live in postgres.
	provider := identity.NewInMemProvider(cfg.JwtConfig.Issuer)

	codes := otpcode.NewService(codeRepo, accounts, notificationManager,
		otpcode.WithExpiry(time.Duration(cfg.OtpConfig.ExpirySeconds)*time.Second),
		otpcode.WithCooldown(time.Duration(cfg.OtpConfig.CooldownSeconds)*time.Second),
	)
	evaluator := assurance.NewEvaluator(provider, codes, accounts)
	enrollmentService := enrollment.NewService(provider, accounts, codes)
	verificationService := verification.NewService(provider, accounts, codes, evaluator, verification.RoleRoutes{
		PlatformOwner: cfg.RouteConfig.PlatformOwner,
		OrgAdmin:      cfg.RouteConfig.OrgAdmin,
		Learner:       cfg.RouteConfig.Learner,
	})
	resetService := passwordreset.NewService(provider, evaluator)

	jwtService := token.NewJwtService(cfg.JwtConfig.Secret, cfg.JwtConfig.Issuer, cfg.JwtConfig.Audience)
	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.Secret), nil)

	limiter := ratelimit.NewMiddleware(ratelimit.DefaultConfig())

	handler := mfaapi.NewHandle(verificationService, enrollmentService, resetService, jwtService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		// Verify populates claims for the per-account rate limit key;
		// the handlers do their own 401 on bad tokens.
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Mount("/mfa", mfaapi.Routes(handler, limiter))
	})

	addr := fmt.Sprintf("%s:%d", cfg.AppConfig.Host, cfg.AppConfig.Port)
	slog.Info("Starting server", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}
