package mfaapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/tendant/stepup-mfa/pkg/enrollment"
	"github.com/tendant/stepup-mfa/pkg/verification"
)

// ErrorResponse is the JSON body for every non-2xx response. Error is a
// stable machine code, Message is for humans. Nothing beyond the code
// taxonomy leaks out.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// RetryAfterSeconds is set only for resend_too_soon.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// SuccessResponse is the body for operations with no payload
type SuccessResponse struct {
	Result string `json:"result"`
}

// StatusResponse mirrors verification.Status
type StatusResponse struct {
	State      string `json:"state"`
	FactorID   string `json:"factor_id,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// VerifiedResponse confirms a successful step-up and carries the role's
// redirect target.
type VerifiedResponse struct {
	Verified   bool   `json:"verified"`
	RedirectTo string `json:"redirect_to"`
}

// EnrollTotpResponse mirrors enrollment.TotpProvisioning
type EnrollTotpResponse struct {
	FactorID        string `json:"factor_id"`
	Secret          string `json:"secret,omitempty"`
	URI             string `json:"uri,omitempty"`
	AlreadyEnrolled bool   `json:"already_enrolled"`
}

// EnrollEmailResponse echoes where the verification code was sent
type EnrollEmailResponse struct {
	Email string `json:"email"`
}

func toStatusResponse(status verification.Status) StatusResponse {
	var resp StatusResponse
	if err := copier.Copy(&resp, &status); err != nil {
		slog.Error("Failed to map status response", "err", err)
	}
	// uuid fields don't convert to string by field copy
	if status.FactorID != uuid.Nil {
		resp.FactorID = status.FactorID.String()
	}
	return resp
}

func toEnrollTotpResponse(prov enrollment.TotpProvisioning) EnrollTotpResponse {
	var resp EnrollTotpResponse
	if err := copier.Copy(&resp, &prov); err != nil {
		slog.Error("Failed to map enrollment response", "err", err)
	}
	resp.FactorID = prov.FactorID.String()
	return resp
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{Error: code, Message: message})
}
