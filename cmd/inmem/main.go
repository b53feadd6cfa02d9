// Package main runs the step-up MFA service without a database or SMTP
// server, entirely on in-memory implementations. Useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Learning the API without infrastructure setup
//
// Note: All data is lost when the server stops. For production, use
// cmd/stepup with PostgreSQL and a real SMTP relay.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/tendant/stepup-mfa/pkg/assurance"
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

const (
	jwtSecret = "inmem-dev-secret-change-in-production"
	issuer    = "inmem-stepup"
)

// logNotifier prints verification codes to stdout instead of emailing
// them, so the demo flow works without an SMTP server.
type logNotifier struct{}

func (n logNotifier) Send(noticeType notification.NoticeType, data notification.NotificationData, template notification.NoticeTemplate) error {
	slog.Info("Verification code issued",
		"notice", string(noticeType),
		"to", data.To,
		"code", data.Data["Passcode"],
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory Step-Up MFA Service (no database required)")
	slog.Info(strings.Repeat("=", 60))

	accounts := profile.NewInMemoryAccountRepository()
	codeRepo := otpcode.NewInMemoryCodeRepository()
	provider := identity.NewInMemProvider(issuer)

	notificationManager, err := notice.NewNotificationManager(
		notice.WithNotifier(notification.EmailSystem, logNotifier{}),
		notice.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "err", err)
		os.Exit(-1)
	}

	codes := otpcode.NewService(codeRepo, accounts, notificationManager)
	evaluator := assurance.NewEvaluator(provider, codes, accounts)
	enrollmentService := enrollment.NewService(provider, accounts, codes)
	verificationService := verification.NewService(provider, accounts, codes, evaluator, verification.RoleRoutes{
		PlatformOwner: "/platform",
		OrgAdmin:      "/org",
		Learner:       "/learn",
	})
	resetService := passwordreset.NewService(provider, evaluator)

	jwtService := token.NewJwtService(jwtSecret, issuer, issuer)
	tokenAuth := jwtauth.New("HS256", []byte(jwtSecret), nil)
	limiter := ratelimit.NewMiddleware(ratelimit.DefaultConfig())

	seedDemoAccounts(accounts, provider, jwtService)

	handler := mfaapi.NewHandle(verificationService, enrollmentService, resetService, jwtService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Mount("/mfa", mfaapi.Routes(handler, limiter))
	})

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory Step-Up MFA Service Ready")
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  GET  /mfa/status              - Step-up state of the session")
	slog.Info("  POST /mfa/enroll/totp         - Start TOTP enrollment")
	slog.Info("  POST /mfa/enroll/totp/verify  - Confirm TOTP enrollment")
	slog.Info("  POST /mfa/enroll/email        - Start email enrollment")
	slog.Info("  POST /mfa/enroll/email/send   - Send the enrollment code")
	slog.Info("  POST /mfa/enroll/email/verify - Confirm email enrollment")
	slog.Info("  POST /mfa/send-code           - Send a step-up code")
	slog.Info("  POST /mfa/verify-code         - Check a step-up code")
	slog.Info("  POST /mfa/password-reset      - Change password (step-up gated)")
	slog.Info(strings.Repeat("=", 60))

	if err := http.ListenAndServe("localhost:4000", r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}

// seedDemoAccounts creates one account per role and prints a ready-to-use
// bearer token for each.
func seedDemoAccounts(accounts *profile.InMemoryAccountRepository, provider *identity.InMemProvider, jwtService *token.JwtService) {
	ctx := context.Background()

	seeds := []struct {
		email string
		role  string
	}{
		{"owner@example.com", profile.RolePlatformOwner},
		{"admin@example.com", profile.RoleOrgAdmin},
		{"learner@example.com", profile.RoleLearner},
	}

	slog.Info("Demo accounts:")
	for _, seed := range seeds {
		account, err := accounts.CreateAccount(ctx, profile.CreateAccountParams{
			Email: seed.email,
			Role:  seed.role,
		})
		if err != nil {
			slog.Error("Failed to seed account", "email", seed.email, "err", err)
			continue
		}

		session := provider.CreateSession(account.ID)
		tokenStr, _, err := jwtService.GenerateSessionToken(session, 24*time.Hour)
		if err != nil {
			slog.Error("Failed to mint demo token", "email", seed.email, "err", err)
			continue
		}
		slog.Info("  "+seed.email, "role", seed.role, "token", tokenStr)
	}
}
