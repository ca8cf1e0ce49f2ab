package httpapi

import (
	"errors"
	"net/http"

	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/jobs"
)

// handleVerifyPayment is called by the payment provider. It is
// authenticated by the payment signature, not by a session.
func (a *API) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.deps.Payments == nil {
		writeError(w, r, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	var p jobs.Payment
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := a.deps.Payments.Verify(r.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrBadSignature):
			a.log.Warn().Str("organization_id", p.OrganizationID).Str("order_id", p.OrderID).Msg("payment signature rejected")
			writeError(w, r, http.StatusUnauthorized, "invalid payment signature")
		case errors.Is(err, jobs.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrSubscriptionNotFound):
			writeError(w, r, http.StatusNotFound, "subscription not found")
		case errors.Is(err, jobs.ErrPaymentReplayed):
			a.log.Warn().Str("organization_id", p.OrganizationID).Str("order_id", p.OrderID).Msg("payment order reused")
			writeError(w, r, http.StatusConflict, "payment order already used")
		default:
			a.log.Error().Err(err).Str("organization_id", p.OrganizationID).Msg("payment activation failed")
			writeError(w, r, http.StatusInternalServerError, "payment activation failed")
		}
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.EventPaymentActivated, map[string]any{
		"organization_id": sub.OrganizationID,
		"plan":            string(sub.Plan),
		"order_id":        p.OrderID,
		"payment_id":      p.PaymentID,
	})
	writeJSON(w, http.StatusOK, sub)
}
