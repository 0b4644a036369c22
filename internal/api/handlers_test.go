package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/booking/internal/auth"
	"example.com/booking/internal/domain"
	"example.com/booking/internal/persistence/memory"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*Handler, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	repo.SeedFacility(domain.Facility{ID: 1, Name: "Riverside Courts", Address: "1 River Rd", AccessCode: "RIVER1"})
	svc := domain.NewService(repo, repo, domain.WithClock(func() time.Time { return testNow }))
	return NewHandler(svc), repo
}

func seedOffering(repo *memory.Repository, id string, capMax, current int) {
	repo.SeedOffering(domain.ClassOffering{
		ID:              id,
		FacilityID:      1,
		Name:            "Dink Drills",
		StartsAt:        testNow.Add(48 * time.Hour),
		EndsAt:          testNow.Add(49 * time.Hour),
		SkillLevel:      "intermediate",
		PriceCents:      1500,
		CapacityMin:     2,
		CapacityMax:     capMax,
		CapacityCurrent: current,
	})
}

func doRequest(h *Handler, method, target string, body []byte, claims *auth.Claims) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func claimsWithScopes(userID string, scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &auth.Claims{Subject: userID, Scopes: set}
}

func readerClaims(userID string) *auth.Claims {
	return claimsWithScopes(userID, auth.ScopeBookingsRead)
}

func writerClaims(userID string) *auth.Claims {
	return claimsWithScopes(userID, auth.ScopeBookingsRead, auth.ScopeBookingsWrite)
}

func TestCheckInEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("resolves by code", func(t *testing.T) {
		body, _ := json.Marshal(CheckInRequest{Code: "river1"})
		rec := doRequest(h, http.MethodPost, "/v1/facilities/checkin", body, readerClaims("u1"))
		require.Equal(t, http.StatusOK, rec.Code)

		var view FacilityView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
		assert.Equal(t, int64(1), view.FacilityID)
		assert.Equal(t, "Riverside Courts", view.Name)
	})

	t.Run("resolves by facility id", func(t *testing.T) {
		body, _ := json.Marshal(CheckInRequest{FacilityID: 1})
		rec := doRequest(h, http.MethodPost, "/v1/facilities/checkin", body, readerClaims("u1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown code yields 404", func(t *testing.T) {
		body, _ := json.Marshal(CheckInRequest{Code: "NOPE99"})
		rec := doRequest(h, http.MethodPost, "/v1/facilities/checkin", body, readerClaims("u1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty payload yields 400", func(t *testing.T) {
		rec := doRequest(h, http.MethodPost, "/v1/facilities/checkin", []byte(`{}`), readerClaims("u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing claims yields 401", func(t *testing.T) {
		body, _ := json.Marshal(CheckInRequest{Code: "RIVER1"})
		rec := doRequest(h, http.MethodPost, "/v1/facilities/checkin", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestFacilityViewHidesAccessCode(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/v1/facilities/1", nil, readerClaims("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "RIVER1")
}

func TestWeeklyScheduleEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	seedOffering(repo, "c1", 5, 3)

	rec := doRequest(h, http.MethodGet, "/v1/facilities/1/schedule?week=2026-03-04", nil, readerClaims("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WeekScheduleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), resp.WeekStart)
	require.Len(t, resp.Days, 7)

	// Class starts 2026-03-06, the Friday of that week.
	require.Len(t, resp.Days[4].Classes, 1)
	class := resp.Days[4].Classes[0]
	assert.Equal(t, "c1", class.ClassID)
	assert.Equal(t, "low_availability", class.Availability.Status)
	assert.Equal(t, 2, class.Availability.SpotsLeft)

	t.Run("unknown facility", func(t *testing.T) {
		rec := doRequest(h, http.MethodGet, "/v1/facilities/99/schedule", nil, readerClaims("u1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad week parameter", func(t *testing.T) {
		rec := doRequest(h, http.MethodGet, "/v1/facilities/1/schedule?week=tuesday", nil, readerClaims("u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEnrollEndpoint(t *testing.T) {
	t.Run("enrolls and returns 201", func(t *testing.T) {
		h, repo := newTestHandler(t)
		seedOffering(repo, "c1", 4, 0)

		rec := doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp EnrollmentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "enrolled", resp.Enrollment.State)
		assert.Equal(t, "u1", resp.Enrollment.UserID)
		assert.Equal(t, 1, resp.Class.Capacity.Current)
	})

	t.Run("waitlists when full", func(t *testing.T) {
		h, repo := newTestHandler(t)
		seedOffering(repo, "c1", 1, 1)

		rec := doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp EnrollmentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "waitlisted", resp.Enrollment.State)
		require.NotNil(t, resp.Enrollment.Position)
		assert.Equal(t, 1, *resp.Enrollment.Position)
	})

	t.Run("duplicate enrollment yields 409", func(t *testing.T) {
		h, repo := newTestHandler(t)
		seedOffering(repo, "c1", 4, 0)

		doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
		rec := doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "already_active")
	})

	t.Run("read scope cannot enroll", func(t *testing.T) {
		h, repo := newTestHandler(t)
		seedOffering(repo, "c1", 4, 0)

		rec := doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, readerClaims("u1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown class yields 404", func(t *testing.T) {
		h, _ := newTestHandler(t)
		rec := doRequest(h, http.MethodPost, "/v1/classes/ghost/enroll", nil, writerClaims("u1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	seedOffering(repo, "c1", 1, 0)

	doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
	doRequest(h, http.MethodPost, "/v1/classes/c1/enroll", nil, writerClaims("u2"))

	rec := doRequest(h, http.MethodDelete, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CancelResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cancelled", resp.Enrollment.State)
	require.NotNil(t, resp.Promoted)
	assert.Equal(t, "u2", resp.Promoted.UserID)
	assert.Equal(t, "enrolled", resp.Promoted.State)
	assert.Equal(t, 1, resp.Class.Capacity.Current)

	t.Run("second cancel yields 404", func(t *testing.T) {
		rec := doRequest(h, http.MethodDelete, "/v1/classes/c1/enroll", nil, writerClaims("u1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMyClassesEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	seedOffering(repo, "future", 4, 0)
	repo.SeedOffering(domain.ClassOffering{
		ID:          "past",
		FacilityID:  1,
		Name:        "Morning Rally",
		StartsAt:    testNow.Add(-24 * time.Hour),
		EndsAt:      testNow.Add(-23 * time.Hour),
		CapacityMax: 4,
	})

	doRequest(h, http.MethodPost, "/v1/classes/future/enroll", nil, writerClaims("u1"))
	doRequest(h, http.MethodPost, "/v1/classes/past/enroll", nil, writerClaims("u1"))

	rec := doRequest(h, http.MethodGet, "/v1/me/classes", nil, readerClaims("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MyClassesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Upcoming, 1)
	require.Len(t, resp.Past, 1)
	assert.Equal(t, "future", resp.Upcoming[0].Class.ClassID)
	assert.Equal(t, "past", resp.Past[0].Class.ClassID)

	t.Run("bad cursor yields 400", func(t *testing.T) {
		rec := doRequest(h, http.MethodGet, "/v1/me/classes?cursor=!!!", nil, readerClaims("u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
