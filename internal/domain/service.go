// Package domain defines the booking state machine for the Pickle+ platform:
// facility check-in, the weekly schedule projection, and the enrollment
// coordinator with its waitlist semantics.
package domain

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/booking/internal/observability"
)

// FacilityRepository captures facility lookups.
type FacilityRepository interface {
	ListFacilities(ctx context.Context) ([]Facility, error)
	FacilityByID(ctx context.Context, id int64) (*Facility, error)
	FacilityByAccessCode(ctx context.Context, code string) (*Facility, error)
}

// BookingRepository captures offering reads and the transactional enrollment
// transitions. Enroll and CancelEnrollment must serialize per class so that
// concurrent requests never over-commit the capacity counter.
type BookingRepository interface {
	OfferingByID(ctx context.Context, classID string) (*ClassOffering, error)
	OfferingsForWeek(ctx context.Context, facilityID int64, weekStart, weekEnd time.Time) ([]ClassOffering, error)
	Enroll(ctx context.Context, record EnrollmentRecord) (*EnrollmentOutcome, error)
	CancelEnrollment(ctx context.Context, classID, userID string, now time.Time) (*CancelResult, error)
	EnrollmentsByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]UserEnrollment, *Cursor, error)
}

// Cursor models the pagination token for enrollment listings.
type Cursor struct {
	StartsAt time.Time
	ID       string
}

// ScheduleCache stores week views keyed by (facility, week start). Dropped
// entries are recomputed on the next read.
type ScheduleCache interface {
	Get(facilityID int64, weekStart time.Time) (*WeekView, bool)
	Put(view WeekView)
	Drop(facilityID int64, weekStart time.Time)
}

// EdgeInvalidator busts external read caches after an enrollment mutation.
type EdgeInvalidator interface {
	Invalidate(ctx context.Context, classID string) error
}

// Service orchestrates the booking workflows.
type Service struct {
	facilities FacilityRepository
	bookings   BookingRepository
	cache      ScheduleCache
	edge       EdgeInvalidator
	now        func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithScheduleCache attaches an in-process week view cache.
func WithScheduleCache(cache ScheduleCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithEdgeInvalidator attaches an external cache invalidation hook.
func WithEdgeInvalidator(edge EdgeInvalidator) Option {
	return func(s *Service) { s.edge = edge }
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(facilities FacilityRepository, bookings BookingRepository, opts ...Option) *Service {
	s := &Service{
		facilities: facilities,
		bookings:   bookings,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFacilities returns all facilities.
func (s *Service) ListFacilities(ctx context.Context) ([]Facility, error) {
	return s.facilities.ListFacilities(ctx)
}

// CheckIn resolves a user-supplied facility identifier. Check-in codes take
// precedence; inputs that are purely numeric fall back to an ID lookup when
// no facility carries the code.
func (s *Service) CheckIn(ctx context.Context, input string) (*Facility, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(input))
	if trimmed == "" {
		return nil, ErrFacilityNotFound
	}

	if IsAccessCode(trimmed) {
		facility, err := s.facilities.FacilityByAccessCode(ctx, trimmed)
		if err != nil {
			return nil, err
		}
		if facility != nil {
			return facility, nil
		}
	}

	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return s.FacilityByID(ctx, id)
	}
	return nil, ErrFacilityNotFound
}

// FacilityByID resolves an explicit facility selection.
func (s *Service) FacilityByID(ctx context.Context, id int64) (*Facility, error) {
	facility, err := s.facilities.FacilityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if facility == nil {
		return nil, ErrFacilityNotFound
	}
	return facility, nil
}

// WeeklySchedule computes the week view for the week containing anchor. The
// projection is pure: identical anchors with no intervening enrollment
// mutations yield identical views.
func (s *Service) WeeklySchedule(ctx context.Context, facilityID int64, anchor time.Time) (*WeekView, error) {
	if _, err := s.FacilityByID(ctx, facilityID); err != nil {
		return nil, err
	}

	weekStart := WeekStart(anchor)
	if s.cache != nil {
		if view, ok := s.cache.Get(facilityID, weekStart); ok {
			return view, nil
		}
	}

	offerings, err := s.bookings.OfferingsForWeek(ctx, facilityID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}

	view := BuildWeekView(facilityID, weekStart, offerings)
	if s.cache != nil {
		s.cache.Put(view)
	}
	return &view, nil
}

// GetOffering fetches one offering with its derived availability.
func (s *Service) GetOffering(ctx context.Context, classID string) (*ScheduledOffering, error) {
	off, err := s.bookings.OfferingByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if off == nil {
		return nil, ErrClassNotFound
	}
	return &ScheduledOffering{ClassOffering: *off, Status: off.Availability()}, nil
}

// RequestEnrollment enrolls the user into the class or queues them on the
// waitlist when the class is full. The capacity decision happens inside the
// repository transaction; this layer owns identity, cache busting, and
// metrics.
func (s *Service) RequestEnrollment(ctx context.Context, classID, userID string) (*EnrollmentOutcome, error) {
	now := s.now()
	record := EnrollmentRecord{
		ID:        uuid.NewString(),
		ClassID:   classID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	outcome, err := s.bookings.Enroll(ctx, record)
	if err != nil {
		return nil, err
	}

	observability.RecordEnrollmentDecision(string(outcome.Record.State))
	observability.RecordEnrollmentPersisted(now)
	s.invalidateSchedule(ctx, outcome.Offering)
	return outcome, nil
}

// CancelEnrollment cancels the user's active record. Freed slots are handed
// to the head of the waitlist atomically with the cancellation.
func (s *Service) CancelEnrollment(ctx context.Context, classID, userID string) (*CancelResult, error) {
	result, err := s.bookings.CancelEnrollment(ctx, classID, userID, s.now())
	if err != nil {
		return nil, err
	}

	if result.Promoted != nil {
		observability.RecordWaitlistPromotion()
	}
	s.invalidateSchedule(ctx, result.Offering)
	return result, nil
}

// ClassesForUser lists the user's active enrollments partitioned into
// upcoming and past by class start time.
func (s *Service) ClassesForUser(ctx context.Context, userID string, cursor *Cursor, limit int) (*UserClasses, *Cursor, error) {
	items, next, err := s.bookings.EnrollmentsByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	classes := &UserClasses{}
	for _, item := range items {
		if item.Offering.StartsAt.After(now) {
			classes.Upcoming = append(classes.Upcoming, item)
		} else {
			classes.Past = append(classes.Past, item)
		}
	}
	return classes, next, nil
}

// invalidateSchedule drops the affected week from the local cache and pings
// the edge cache. Edge failures are logged, not propagated: the enrollment
// already committed.
func (s *Service) invalidateSchedule(ctx context.Context, off ClassOffering) {
	if s.cache != nil {
		s.cache.Drop(off.FacilityID, WeekStart(off.StartsAt))
	}
	if s.edge != nil {
		if err := s.edge.Invalidate(ctx, off.ID); err != nil {
			log.Printf("schedule cache invalidation failed (class=%s): %v", off.ID, err)
		}
	}
}
