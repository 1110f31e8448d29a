package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/schoolsuite/absence-cover-duty/internal/directory"
)

// GetTeacher handles GET /tenants/{tenantID}/teachers/{teacherID}.
func (h *Handlers) GetTeacher(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	teacherID, ok := pathUUID(w, r, "teacherID")
	if !ok {
		return
	}
	teacher, err := h.directory.Teacher(r.Context(), tenantID, teacherID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teacher)
}

// ListTeachers handles GET /tenants/{tenantID}/teachers.
func (h *Handlers) ListTeachers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if role := r.URL.Query().Get("role"); role != "" {
		teachers, err := h.directory.ListTeachersByRole(r.Context(), tenantID, directory.Role(role))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, teachers)
		return
	}
	teachers, err := h.directory.ListTeachers(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teachers)
}

// GetStudent handles GET /tenants/{tenantID}/students/{esisCode}.
func (h *Handlers) GetStudent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	esisCode := chi.URLParam(r, "esisCode")
	student, err := h.directory.StudentByESIS(r.Context(), tenantID, esisCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// ListStudentsByHomeroom handles GET /tenants/{tenantID}/students?homeroom=G6A.
func (h *Handlers) ListStudentsByHomeroom(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	homeroom := r.URL.Query().Get("homeroom")
	students, err := h.directory.StudentsByHomeroom(r.Context(), tenantID, homeroom)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// GetScheduleCatalogSummary handles GET /tenants/{tenantID}/schedule/catalog,
// a lightweight endpoint mostly used to confirm the per-tenant catalog has
// refreshed after a bulk schedule import.
func (h *Handlers) GetScheduleCatalogSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	cat, err := h.catalogFor(r, tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"known_teachers": len(cat.KnownTeacherIDs())})
}
