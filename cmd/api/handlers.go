package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/apierror"
	"github.com/schoolsuite/absence-cover-duty/internal/attachments"
	"github.com/schoolsuite/absence-cover-duty/internal/auth"
	"github.com/schoolsuite/absence-cover-duty/internal/covers"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/duty"
	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
	"github.com/schoolsuite/absence-cover-duty/internal/metrics"
	"github.com/schoolsuite/absence-cover-duty/internal/schedule"
	"github.com/schoolsuite/absence-cover-duty/internal/tenantctx"
	"github.com/schoolsuite/absence-cover-duty/internal/webhookingress"
)

// Handlers groups every dependency cmd/api's routes call into, following
// the teacher's single-struct-of-services convention.
type Handlers struct {
	directory    *directory.Service
	scheduleRepo schedule.Repository
	leaves       *leaves.Engine
	covers       *covers.Engine
	duty         *duty.Engine
	webhooks     *webhookingress.Engine
	attachments  *attachments.Store
	metrics      *metrics.Metrics
	log          zerolog.Logger

	catalogs   map[uuid.UUID]*schedule.Catalog
	catalogsMu sync.Mutex
}

// catalogFor returns a freshly-refreshed schedule catalog for tenantID.
// Each tenant gets its own *schedule.Catalog instance so concurrent
// requests for different tenants never race on the same in-memory index;
// refreshing on every call trades a per-request query for not having to
// reason about cache invalidation, matching this module's general
// no-in-process-cache stance (internal/duty's availability client is the
// one named exception).
func (h *Handlers) catalogFor(r *http.Request, tenantID uuid.UUID) (*schedule.Catalog, error) {
	h.catalogsMu.Lock()
	cat, ok := h.catalogs[tenantID]
	if !ok {
		cat = schedule.NewCatalog(h.scheduleRepo)
		h.catalogs[tenantID] = cat
	}
	h.catalogsMu.Unlock()

	if err := cat.Refresh(r.Context(), tenantID); err != nil {
		return nil, err
	}
	return cat, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: apierror.Sanitize(err.Error())})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// requireTenant resolves the request's tenant id or writes a 400 and
// reports ok=false.
func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := tenantctx.Require(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return uuid.UUID{}, false
	}
	return id, true
}

// currentClaims resolves the caller's JWT claims or writes a 401 and
// reports ok=false.
func currentClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return nil, false
	}
	return claims, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid "+name))
		return uuid.UUID{}, false
	}
	return id, true
}

// statusForDomainError maps the module's sentinel errors to HTTP statuses.
// Handlers fall back to 500 for anything this doesn't recognize.
func statusForDomainError(err error) (int, bool) {
	switch {
	case errors.Is(err, leaves.ErrInvalidLeaveType),
		errors.Is(err, leaves.ErrMissingReason),
		errors.Is(err, leaves.ErrInvalidDate),
		errors.Is(err, leaves.ErrEndBeforeStart),
		errors.Is(err, leaves.ErrLeaveDateInPast),
		errors.Is(err, leaves.ErrMissingTimeWindow),
		errors.Is(err, leaves.ErrEndTimeBeforeStart),
		errors.Is(err, leaves.ErrNotSickLeave),
		errors.Is(err, duty.ErrInvalidLocation),
		errors.Is(err, duty.ErrInvalidGrade),
		errors.Is(err, duty.ErrInvalidPod),
		errors.Is(err, duty.ErrInvalidPeriod),
		errors.Is(err, duty.ErrInvalidStatus),
		errors.Is(err, duty.ErrNoteRequired),
		errors.Is(err, duty.ErrBreakLocationRequired),
		errors.Is(err, webhookingress.ErrMissingFields):
		return http.StatusBadRequest, true
	case errors.Is(err, leaves.ErrForbiddenWindow),
		errors.Is(err, leaves.ErrDuplicatePending),
		errors.Is(err, leaves.ErrNotPending),
		errors.Is(err, leaves.ErrAttachmentRequired),
		errors.Is(err, duty.ErrDuplicateAssignment):
		return http.StatusConflict, true
	case errors.Is(err, leaves.ErrNotSuperAdmin),
		errors.Is(err, duty.ErrRoleExcluded),
		errors.Is(err, duty.ErrForbidden),
		errors.Is(err, webhookingress.ErrInvalidSecret):
		return http.StatusForbidden, true
	case errors.Is(err, leaves.ErrNotFound),
		errors.Is(err, duty.ErrNotFound),
		errors.Is(err, directory.ErrTeacherNotFound),
		errors.Is(err, directory.ErrStudentNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

func writeDomainError(w http.ResponseWriter, err error) {
	if status, ok := statusForDomainError(err); ok {
		writeError(w, status, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
