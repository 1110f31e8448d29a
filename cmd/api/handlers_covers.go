package main

import (
	"net/http"
)

type updateCoverRequest struct {
	Fields map[string]string `json:"fields"`
}

// UpdateCover handles PATCH /tenants/{tenantID}/covers/{assignmentID}.
func (h *Handlers) UpdateCover(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(w, r, "assignmentID")
	if !ok {
		return
	}

	var in updateCoverRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.covers.Update(r.Context(), tenantID, assignmentID, in.Fields); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCovers handles GET /tenants/{tenantID}/covers?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handlers) ListCovers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	from, err := parseCivilDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseCivilDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if to.IsZero() {
		to = from
	}

	assignments, err := h.covers.ListForDateRange(r.Context(), tenantID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// ListCoverGaps handles GET /tenants/{tenantID}/covers/gaps?from=YYYY-MM-DD&to=YYYY-MM-DD,
// the queryable backlog of slots AssignForLeave could not fill.
func (h *Handlers) ListCoverGaps(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	from, err := parseCivilDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseCivilDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if to.IsZero() {
		to = from
	}

	gaps, err := h.covers.ListGaps(r.Context(), tenantID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

// BackfillCovers handles POST /tenants/{tenantID}/covers/backfill, an
// admin-triggered re-run of C8 against every persisted approved leave.
func (h *Handlers) BackfillCovers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	summary, err := h.webhooks.Backfill(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
