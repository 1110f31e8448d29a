package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/webhookingress"
)

// LeaveApprovalWebhook handles POST /external/leave-approvals, the single
// unauthenticated (secret-gated) endpoint this service exposes: the
// leave-request service calls it directly, with no JWT, identifying the
// tenant via X-Tenant-ID and the shared secret via X-Leave-Webhook-Secret.
func (h *Handlers) LeaveApprovalWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.webhooks.CheckSecret(r.Header.Get("X-Leave-Webhook-Secret")) {
		writeError(w, http.StatusForbidden, webhookingress.ErrInvalidSecret)
		return
	}

	tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("missing or invalid X-Tenant-ID header"))
		return
	}

	var payload webhookingress.InboundPayload
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := h.webhooks.Record(r.Context(), tenantID, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
