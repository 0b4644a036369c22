// Package api exposes HTTP handlers for the booking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/booking/internal/auth"
	"example.com/booking/internal/domain"
	"example.com/booking/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/facilities", h.facilities)
	mux.HandleFunc("/v1/facilities/checkin", h.checkIn)
	mux.HandleFunc("/v1/facilities/", h.facilityByID)
	mux.HandleFunc("/v1/classes/", h.classByID)
	mux.HandleFunc("/v1/me/classes", h.myClasses)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) facilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.requireScope(w, r, auth.ScopeBookingsRead, auth.ScopeBookingsWrite) {
		return
	}

	facilities, err := h.service.ListFacilities(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]FacilityView, 0, len(facilities))
	for _, f := range facilities {
		items = append(items, toFacilityView(f))
	}
	writeJSON(w, http.StatusOK, ListFacilitiesResponse{Items: items})
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.requireScope(w, r, auth.ScopeBookingsRead, auth.ScopeBookingsWrite) {
		return
	}

	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input := req.Code
	if input == "" && req.FacilityID != 0 {
		input = strconv.FormatInt(req.FacilityID, 10)
	}
	if strings.TrimSpace(input) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "code or facility_id is required")
		return
	}

	facility, err := h.service.CheckIn(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFacilityView(*facility))
}

func (h *Handler) facilityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/facilities/")
	idPart, tail, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid facility id")
		return
	}

	switch {
	case tail == "schedule" && r.Method == http.MethodGet:
		h.weeklySchedule(w, r, id)
	case tail == "" && r.Method == http.MethodGet:
		h.getFacility(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getFacility(w http.ResponseWriter, r *http.Request, id int64) {
	if !h.requireScope(w, r, auth.ScopeBookingsRead, auth.ScopeBookingsWrite) {
		return
	}

	facility, err := h.service.FacilityByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFacilityView(*facility))
}

func (h *Handler) weeklySchedule(w http.ResponseWriter, r *http.Request, facilityID int64) {
	if !h.requireScope(w, r, auth.ScopeBookingsRead, auth.ScopeBookingsWrite) {
		return
	}

	anchor := time.Now().UTC()
	if raw := r.URL.Query().Get("week"); raw != "" {
		parsed, err := parseAnchor(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid week parameter")
			return
		}
		anchor = parsed
	}

	view, err := h.service.WeeklySchedule(r.Context(), facilityID, anchor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := WeekScheduleResponse{
		FacilityID: view.FacilityID,
		WeekStart:  view.WeekStart,
		Days:       make([]DayScheduleView, 0, len(view.Days)),
	}
	for _, day := range view.Days {
		dayView := DayScheduleView{
			Date:    day.Date,
			Classes: make([]ClassView, 0, len(day.Offerings)),
		}
		for _, off := range day.Offerings {
			dayView.Classes = append(dayView.Classes, toClassView(off))
		}
		resp.Days = append(resp.Days, dayView)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) classByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/classes/")
	id, tail, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing class id")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		h.getClass(w, r, id)
	case tail == "enroll" && r.Method == http.MethodPost:
		h.enroll(w, r, id)
	case tail == "enroll" && r.Method == http.MethodDelete:
		h.cancelEnrollment(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getClass(w http.ResponseWriter, r *http.Request, classID string) {
	if !h.requireScope(w, r, auth.ScopeBookingsRead, auth.ScopeBookingsWrite) {
		return
	}

	off, err := h.service.GetOffering(r.Context(), classID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClassView(*off))
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request, classID string) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeBookingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope bookings:write required")
		return
	}

	outcome, err := h.service.RequestEnrollment(r.Context(), classID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := EnrollmentResponse{
		Enrollment: toEnrollmentView(outcome.Record),
		Class:      toClassView(domain.ScheduledOffering{ClassOffering: outcome.Offering, Status: outcome.Offering.Availability()}),
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) cancelEnrollment(w http.ResponseWriter, r *http.Request, classID string) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeBookingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope bookings:write required")
		return
	}

	result, err := h.service.CancelEnrollment(r.Context(), classID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CancelResponse{
		Enrollment: toEnrollmentView(result.Record),
		Class:      toClassView(domain.ScheduledOffering{ClassOffering: result.Offering, Status: result.Offering.Availability()}),
	}
	if result.Promoted != nil {
		promoted := toEnrollmentView(*result.Promoted)
		resp.Promoted = &promoted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) myClasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeBookingsRead) && !claims.HasScope(auth.ScopeBookingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope bookings:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	classes, next, err := h.service.ClassesForUser(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := MyClassesResponse{
		Upcoming:   toUserClassViews(classes.Upcoming),
		Past:       toUserClassViews(classes.Past),
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	return claims, true
}

func (h *Handler) requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "insufficient scope")
	return false
}

// parseAnchor accepts either a bare date or a full RFC 3339 timestamp.
func parseAnchor(raw string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// CheckInRequest is the payload for POST /v1/facilities/checkin.
type CheckInRequest struct {
	Code       string `json:"code,omitempty"`
	FacilityID int64  `json:"facility_id,omitempty"`
}

// FacilityView exposes facility details. The check-in code stays private.
type FacilityView struct {
	FacilityID int64  `json:"facility_id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
}

// ListFacilitiesResponse packages the facility listing.
type ListFacilitiesResponse struct {
	Items []FacilityView `json:"items"`
}

// CapacityView mirrors the offering's capacity counters.
type CapacityView struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
}

// AvailabilityView carries the derived status for an offering.
type AvailabilityView struct {
	Status      string `json:"status"`
	SpotsLeft   int    `json:"spots_left,omitempty"`
	NeededCount int    `json:"needed_count,omitempty"`
}

// ClassView exposes full details about a class offering.
type ClassView struct {
	ClassID       string           `json:"class_id"`
	FacilityID    int64            `json:"facility_id"`
	Name          string           `json:"name"`
	StartsAt      time.Time        `json:"starts_at"`
	EndsAt        time.Time        `json:"ends_at"`
	SkillLevel    string           `json:"skill_level"`
	PriceCents    int              `json:"price_cents"`
	CoachID       string           `json:"coach_id"`
	Capacity      CapacityView     `json:"capacity"`
	WaitlistCount int              `json:"waitlist_count"`
	Availability  AvailabilityView `json:"availability"`
}

// DayScheduleView holds one day of the weekly schedule.
type DayScheduleView struct {
	Date    time.Time   `json:"date"`
	Classes []ClassView `json:"classes"`
}

// WeekScheduleResponse is the weekly projection for a facility.
type WeekScheduleResponse struct {
	FacilityID int64             `json:"facility_id"`
	WeekStart  time.Time         `json:"week_start"`
	Days       []DayScheduleView `json:"days"`
}

// EnrollmentView exposes an enrollment record.
type EnrollmentView struct {
	EnrollmentID string    `json:"enrollment_id"`
	ClassID      string    `json:"class_id"`
	UserID       string    `json:"user_id"`
	State        string    `json:"state"`
	Position     *int      `json:"position,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EnrollmentResponse describes the response body for enroll.
type EnrollmentResponse struct {
	Enrollment EnrollmentView `json:"enrollment"`
	Class      ClassView      `json:"class"`
}

// CancelResponse describes the response body for cancellation, including a
// promoted waitlist record when the freed slot was reassigned.
type CancelResponse struct {
	Enrollment EnrollmentView  `json:"enrollment"`
	Class      ClassView       `json:"class"`
	Promoted   *EnrollmentView `json:"promoted,omitempty"`
}

// UserClassView joins an enrollment with its class for my-classes.
type UserClassView struct {
	Enrollment EnrollmentView `json:"enrollment"`
	Class      ClassView      `json:"class"`
}

// MyClassesResponse partitions the caller's classes around now.
type MyClassesResponse struct {
	Upcoming   []UserClassView `json:"upcoming"`
	Past       []UserClassView `json:"past"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toFacilityView(f domain.Facility) FacilityView {
	return FacilityView{FacilityID: f.ID, Name: f.Name, Address: f.Address}
}

func toClassView(off domain.ScheduledOffering) ClassView {
	return ClassView{
		ClassID:    off.ID,
		FacilityID: off.FacilityID,
		Name:       off.Name,
		StartsAt:   off.StartsAt,
		EndsAt:     off.EndsAt,
		SkillLevel: off.SkillLevel,
		PriceCents: off.PriceCents,
		CoachID:    off.CoachID,
		Capacity: CapacityView{
			Min:     off.CapacityMin,
			Max:     off.CapacityMax,
			Current: off.CapacityCurrent,
		},
		WaitlistCount: off.WaitlistCount,
		Availability: AvailabilityView{
			Status:      string(off.Status.Code),
			SpotsLeft:   off.Status.SpotsLeft,
			NeededCount: off.Status.NeededCount,
		},
	}
}

func toEnrollmentView(rec domain.EnrollmentRecord) EnrollmentView {
	return EnrollmentView{
		EnrollmentID: rec.ID,
		ClassID:      rec.ClassID,
		UserID:       rec.UserID,
		State:        string(rec.State),
		Position:     rec.Position,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func toUserClassViews(items []domain.UserEnrollment) []UserClassView {
	out := make([]UserClassView, 0, len(items))
	for _, item := range items {
		out = append(out, UserClassView{
			Enrollment: toEnrollmentView(item.Record),
			Class:      toClassView(domain.ScheduledOffering{ClassOffering: item.Offering, Status: item.Offering.Availability()}),
		})
	}
	return out
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "facility not found")
	case errors.Is(err, domain.ErrClassNotFound):
		writeError(w, http.StatusNotFound, "not_found", "class not found")
	case errors.Is(err, domain.ErrEnrollmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", "active enrollment not found")
	case errors.Is(err, domain.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "already_active", "user already has an active enrollment for this class")
	case errors.Is(err, domain.ErrClassCancelled):
		writeError(w, http.StatusConflict, "class_cancelled", "class has been cancelled")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "concurrency_conflict", "lost a concurrent enrollment race, re-fetch and retry")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
