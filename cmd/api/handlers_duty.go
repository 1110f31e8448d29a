package main

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/duty"
)

type assignDailyRequest struct {
	AssignmentDate string `json:"assignment_date"`
	DutyType       string `json:"duty_type"`
	Location       string `json:"location"`
	TeacherID      string `json:"teacher_id"`
}

// AssignDaily handles POST /tenants/{tenantID}/duty/daily.
func (h *Handlers) AssignDaily(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}

	var in assignDailyRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	date, err := parseCivilDate(in.AssignmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	teacherID, err := uuid.Parse(in.TeacherID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	createdBy, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	assignment, err := h.duty.AssignDaily(r.Context(), tenantID, duty.AssignDailyInput{
		AssignmentDate:     date,
		DutyType:           duty.DutyType(in.DutyType),
		Location:           duty.Location(in.Location),
		TeacherID:          teacherID,
		CreatedByTeacherID: createdBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

// RemoveDaily handles DELETE /tenants/{tenantID}/duty/daily/{assignmentID}.
func (h *Handlers) RemoveDaily(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(w, r, "assignmentID")
	if !ok {
		return
	}
	if err := h.duty.RemoveDaily(r.Context(), tenantID, assignmentID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDailyWeek handles GET /tenants/{tenantID}/duty/daily?week_start=YYYY-MM-DD.
func (h *Handlers) ListDailyWeek(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	weekStart, err := parseCivilDate(r.URL.Query().Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	assignments, err := h.duty.ListDailyWeek(r.Context(), tenantID, weekStart)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

type acknowledgeRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// AcknowledgeDaily handles POST /tenants/{tenantID}/duty/daily/{assignmentID}/acknowledge.
func (h *Handlers) AcknowledgeDaily(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(w, r, "assignmentID")
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var in acknowledgeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	isAdmin := claims.Role == "admin" || claims.Role == "administrator"
	if err := h.duty.AcknowledgeDaily(r.Context(), tenantID, assignmentID, actorID, isAdmin, duty.AckStatus(in.Status), in.Note); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type desiredPodSlotRequest struct {
	SlotType      string `json:"slot_type"`
	Pod           string `json:"pod"`
	Period        int    `json:"period"`
	TeacherID     string `json:"teacher_id"`
	BreakLocation string `json:"break_location,omitempty"`
}

func toDesiredPodSlot(w http.ResponseWriter, in desiredPodSlotRequest) (duty.DesiredPodSlot, bool) {
	teacherID, err := uuid.Parse(in.TeacherID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return duty.DesiredPodSlot{}, false
	}
	return duty.DesiredPodSlot{
		SlotType:      duty.SlotType(in.SlotType),
		Pod:           in.Pod,
		Period:        in.Period,
		TeacherID:     teacherID,
		BreakLocation: duty.BreakLocation(in.BreakLocation),
	}, true
}

type replacePodRequest struct {
	AssignmentDate string                  `json:"assignment_date"`
	Desired        []desiredPodSlotRequest `json:"desired"`
}

// ReplacePod handles PUT /tenants/{tenantID}/duty/pods/{grade}.
func (h *Handlers) ReplacePod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	grade, ok := pathGrade(w, r)
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var in replacePodRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	date, err := parseCivilDate(in.AssignmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	desired := make([]duty.DesiredPodSlot, 0, len(in.Desired))
	for _, s := range in.Desired {
		slot, ok := toDesiredPodSlot(w, s)
		if !ok {
			return
		}
		desired = append(desired, slot)
	}

	result, err := h.duty.ReplacePod(r.Context(), tenantID, grade, date, desired, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SingleAssignPod handles POST /tenants/{tenantID}/duty/pods/{grade}.
func (h *Handlers) SingleAssignPod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	grade, ok := pathGrade(w, r)
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var in struct {
		AssignmentDate string                `json:"assignment_date"`
		Slot           desiredPodSlotRequest `json:"slot"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	date, err := parseCivilDate(in.AssignmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, ok := toDesiredPodSlot(w, in.Slot)
	if !ok {
		return
	}

	assignment, err := h.duty.SingleAssignPod(r.Context(), tenantID, grade, date, slot, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

// RemovePod handles DELETE /tenants/{tenantID}/duty/pods/{assignmentID}.
func (h *Handlers) RemovePod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(w, r, "assignmentID")
	if !ok {
		return
	}
	if err := h.duty.RemovePod(r.Context(), tenantID, assignmentID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcknowledgePod handles POST /tenants/{tenantID}/duty/pods/{assignmentID}/acknowledge.
func (h *Handlers) AcknowledgePod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(w, r, "assignmentID")
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var in acknowledgeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	isAdmin := claims.Role == "admin" || claims.Role == "administrator"
	if err := h.duty.AcknowledgePod(r.Context(), tenantID, assignmentID, actorID, isAdmin, duty.AckStatus(in.Status), in.Note); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AvailableForPod handles GET /tenants/{tenantID}/duty/pods/{grade}/available.
func (h *Handlers) AvailableForPod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	grade, ok := pathGrade(w, r)
	if !ok {
		return
	}
	date, err := parseCivilDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, ok := toDesiredPodSlot(w, desiredPodSlotRequest{
		SlotType:      r.URL.Query().Get("slot_type"),
		Pod:           r.URL.Query().Get("pod"),
		Period:        atoiOrZero(r.URL.Query().Get("period")),
		TeacherID:     uuid.Nil.String(),
		BreakLocation: r.URL.Query().Get("break_location"),
	})
	if !ok {
		return
	}

	teachers, err := h.duty.AvailableForPod(r.Context(), tenantID, grade, date, slot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teachers)
}

func pathGrade(w http.ResponseWriter, r *http.Request) (int, bool) {
	grade, err := strconv.Atoi(chi.URLParam(r, "grade"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return 0, false
	}
	return grade, true
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
