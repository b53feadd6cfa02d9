package mfaapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/assurance"
	"github.com/tendant/stepup-mfa/pkg/enrollment"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"github.com/tendant/stepup-mfa/pkg/otpcode"
	"github.com/tendant/stepup-mfa/pkg/passwordreset"
	"github.com/tendant/stepup-mfa/pkg/profile"
	"github.com/tendant/stepup-mfa/pkg/ratelimit"
	"github.com/tendant/stepup-mfa/pkg/token"
	"github.com/tendant/stepup-mfa/pkg/verification"
)

type Handle struct {
	verification *verification.Service
	enrollment   *enrollment.Service
	reset        *passwordreset.Service
	jwtService   *token.JwtService
}

// NewHandle creates a new Handle
func NewHandle(verificationService *verification.Service, enrollmentService *enrollment.Service, resetService *passwordreset.Service, jwtService *token.JwtService) *Handle {
	return &Handle{
		verification: verificationService,
		enrollment:   enrollmentService,
		reset:        resetService,
		jwtService:   jwtService,
	}
}

// Routes returns the http.Handler for the MFA API. When limiter is non-nil
// the code-send and code-check endpoints are throttled.
func Routes(h *Handle, limiter *ratelimit.Middleware) http.Handler {
	r := chi.NewRouter()

	withSend := func(fn http.HandlerFunc) http.Handler {
		if limiter == nil {
			return fn
		}
		return limiter.LimitSend(fn)
	}
	withVerify := func(fn http.HandlerFunc) http.Handler {
		if limiter == nil {
			return fn
		}
		return limiter.LimitVerify(fn)
	}

	r.Get("/status", h.GetStatus)
	r.Method(http.MethodPost, "/send-code", withSend(h.PostSendCode))
	r.Method(http.MethodPost, "/verify-code", withVerify(h.PostVerifyCode))
	r.Post("/enroll/totp", h.PostEnrollTotp)
	r.Method(http.MethodPost, "/enroll/totp/verify", withVerify(h.PostEnrollTotpVerify))
	r.Post("/enroll/email", h.PostEnrollEmail)
	r.Method(http.MethodPost, "/enroll/email/send", withSend(h.PostEnrollEmailSend))
	r.Method(http.MethodPost, "/enroll/email/verify", withVerify(h.PostEnrollEmailVerify))
	r.Post("/password-reset", h.PostPasswordReset)

	return r
}

// sessionFromRequest authenticates the caller, writing a 401 when the
// bearer token is missing or invalid.
func (h *Handle) sessionFromRequest(w http.ResponseWriter, r *http.Request) (identity.Session, bool) {
	session, err := h.jwtService.SessionFromRequest(r)
	if err != nil {
		if errors.Is(err, token.ErrMissingToken) {
			respondError(w, r, http.StatusUnauthorized, "unauthenticated", "Missing or invalid Authorization header")
		} else {
			respondError(w, r, http.StatusUnauthorized, "unauthenticated", "Invalid access token")
		}
		return identity.Session{}, false
	}
	return session, true
}

// Check the session's step-up state
// (GET /status)
func (h *Handle) GetStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.verification.CheckStatus(r.Context(), session)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toStatusResponse(status))
}

// Send (or resend) an email verification code
// (POST /send-code)
func (h *Handle) PostSendCode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	err := h.verification.SendEmailCode(r.Context(), session)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, SuccessResponse{Result: "success"})
}

type VerifyCodeRequest struct {
	Code string `json:"code"`
}

// Check a submitted passcode against the session's configured factor
// (POST /verify-code)
func (h *Handle) PostVerifyCode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	data := VerifyCodeRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "unable to parse body")
		return
	}
	if data.Code == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	// The factor kind is the account's configured method, never a client
	// choice.
	status, err := h.verification.CheckStatus(r.Context(), session)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	var result verification.Result
	switch status.State {
	case verification.StateElevated:
		respondJSON(w, r, http.StatusOK, VerifiedResponse{Verified: true, RedirectTo: status.RedirectTo})
		return
	case verification.StateNoFactor:
		respondError(w, r, http.StatusConflict, "no_factor_enrolled", "No second factor enrolled")
		return
	case verification.StateAwaitTotpCode:
		result, err = h.verification.VerifyTotp(r.Context(), session, data.Code)
	case verification.StateAwaitEmailSend:
		result, err = h.verification.VerifyEmailCode(r.Context(), session, data.Code)
	default:
		respondError(w, r, http.StatusInternalServerError, "internal", "unknown verification state")
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, VerifiedResponse{Verified: true, RedirectTo: result.RedirectTo})
}

// Begin TOTP enrollment, issuing a fresh secret
// (POST /enroll/totp)
func (h *Handle) PostEnrollTotp(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	prov, err := h.enrollment.StartTotp(r.Context(), session.AccountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toEnrollTotpResponse(prov))
}

type EnrollTotpVerifyRequest struct {
	FactorID string `json:"factor_id"`
	Code     string `json:"code"`
}

// Confirm TOTP enrollment with a passcode from the authenticator app
// (POST /enroll/totp/verify)
func (h *Handle) PostEnrollTotpVerify(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	data := EnrollTotpVerifyRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "unable to parse body")
		return
	}
	factorID, err := uuid.Parse(data.FactorID)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "invalid factor id")
		return
	}
	if data.Code == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	if err := h.enrollment.CompleteTotp(r.Context(), session, factorID, data.Code); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, SuccessResponse{Result: "success"})
}

// Begin email enrollment, echoing the destination address. The code is
// sent by a separate call so the client can show where it will go first.
// (POST /enroll/email)
func (h *Handle) PostEnrollEmail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	email, err := h.enrollment.StartEmail(r.Context(), session.AccountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, EnrollEmailResponse{Email: email})
}

// Send the enrollment code to the account's address
// (POST /enroll/email/send)
func (h *Handle) PostEnrollEmailSend(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.enrollment.SendEmail(r.Context(), session.AccountID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, SuccessResponse{Result: "success"})
}

type EnrollEmailVerifyRequest struct {
	Code string `json:"code"`
}

// Confirm email enrollment with the emailed code
// (POST /enroll/email/verify)
func (h *Handle) PostEnrollEmailVerify(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	data := EnrollEmailVerifyRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "unable to parse body")
		return
	}
	if data.Code == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	if err := h.enrollment.CompleteEmail(r.Context(), session, data.Code); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, SuccessResponse{Result: "success"})
}

type PasswordResetRequest struct {
	NewPassword string `json:"new_password"`
}

// Change the password of the calling account. Requires an elevated
// session when a factor is enrolled.
// (POST /password-reset)
func (h *Handle) PostPasswordReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	data := PasswordResetRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "unable to parse body")
		return
	}

	if err := h.reset.Reset(r.Context(), session, data.NewPassword); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, SuccessResponse{Result: "success"})
}

// respondServiceError maps service errors onto the HTTP taxonomy. Unknown
// errors become a plain 500 with no internal detail.
func (h *Handle) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var tooSoon *otpcode.ResendTooSoonError
	switch {
	case errors.As(err, &tooSoon):
		respondJSON(w, r, http.StatusTooManyRequests, ErrorResponse{
			Error:             "resend_too_soon",
			Message:           tooSoon.Error(),
			RetryAfterSeconds: tooSoon.RemainingSeconds(),
		})
	case errors.Is(err, verification.ErrNoFactorEnrolled):
		respondError(w, r, http.StatusConflict, "no_factor_enrolled", "No second factor enrolled")
	case errors.Is(err, otpcode.ErrNoActiveCode):
		respondError(w, r, http.StatusBadRequest, "no_active_code", "No active code. Request a new one.")
	case errors.Is(err, otpcode.ErrExpired):
		respondError(w, r, http.StatusBadRequest, "code_expired", "Code expired. Request a new one.")
	case errors.Is(err, otpcode.ErrMismatch),
		errors.Is(err, verification.ErrInvalidCode),
		errors.Is(err, enrollment.ErrInvalidCode):
		respondError(w, r, http.StatusBadRequest, "invalid_code", "Invalid code")
	case errors.Is(err, assurance.ErrStepUpRequired):
		respondError(w, r, http.StatusForbidden, "step_up_required", "Step-up verification required")
	case errors.Is(err, profile.ErrAccountNotFound):
		respondError(w, r, http.StatusNotFound, "account_not_found", "Account not found")
	case errors.Is(err, enrollment.ErrEnrollmentUnavailable),
		errors.Is(err, verification.ErrVerificationUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "unavailable", "Temporarily unavailable. Try again.")
	case errors.Is(err, passwordreset.ErrEmptyPassword):
		respondError(w, r, http.StatusBadRequest, "bad_request", "new password is required")
	default:
		slog.Error("Unhandled service error", "err", err, "path", r.URL.Path)
		respondError(w, r, http.StatusInternalServerError, "internal", "Internal error")
	}
}
