package httpapi

import (
	"errors"
	"net/http"
	"time"

	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.deps.Sessions == nil || a.deps.Credentials == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := auth.Login(r.Context(), a.deps.Credentials, a.deps.Sessions, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			a.log.Error().Err(err).Msg("token issue failed")
			writeError(w, r, http.StatusInternalServerError, "token generation failed")
		}
		return
	}

	ctx := auth.ContextWithUser(r.Context(), token.UserID)
	_ = a.audit.LogEvent(ctx, audit.EventTokenIssued, map[string]any{
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, token)
}
