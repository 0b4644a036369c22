// Package memory provides an in-memory repository for local development and
// tests. A single mutex is the serialization point, mirroring the row lock
// the Postgres repository takes per class.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/booking/internal/domain"
)

// Repository keeps facilities, offerings, and enrollments in process memory.
type Repository struct {
	mu          sync.RWMutex
	facilities  map[int64]domain.Facility
	offerings   map[string]domain.ClassOffering
	enrollments map[string]domain.EnrollmentRecord
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		facilities:  make(map[int64]domain.Facility),
		offerings:   make(map[string]domain.ClassOffering),
		enrollments: make(map[string]domain.EnrollmentRecord),
	}
}

// SeedFacility stores a facility.
func (r *Repository) SeedFacility(f domain.Facility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facilities[f.ID] = f
}

// SeedOffering stores a class offering.
func (r *Repository) SeedOffering(off domain.ClassOffering) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offerings[off.ID] = off
}

// Offering returns a copy of the stored offering for assertions.
func (r *Repository) Offering(classID string) (domain.ClassOffering, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	off, ok := r.offerings[classID]
	return off, ok
}

// ListFacilities implements domain.FacilityRepository.
func (r *Repository) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Facility, 0, len(r.facilities))
	for _, f := range r.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FacilityByID implements domain.FacilityRepository.
func (r *Repository) FacilityByID(ctx context.Context, id int64) (*domain.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.facilities[id]; ok {
		return &f, nil
	}
	return nil, nil
}

// FacilityByAccessCode implements domain.FacilityRepository.
func (r *Repository) FacilityByAccessCode(ctx context.Context, code string) (*domain.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.facilities {
		if f.AccessCode == code {
			facility := f
			return &facility, nil
		}
	}
	return nil, nil
}

// OfferingByID implements domain.BookingRepository.
func (r *Repository) OfferingByID(ctx context.Context, classID string) (*domain.ClassOffering, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if off, ok := r.offerings[classID]; ok {
		return &off, nil
	}
	return nil, nil
}

// OfferingsForWeek implements domain.BookingRepository.
func (r *Repository) OfferingsForWeek(ctx context.Context, facilityID int64, weekStart, weekEnd time.Time) ([]domain.ClassOffering, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ClassOffering
	for _, off := range r.offerings {
		if off.FacilityID != facilityID {
			continue
		}
		if off.StartsAt.Before(weekStart) || !off.StartsAt.Before(weekEnd) {
			continue
		}
		out = append(out, off)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Enroll implements domain.BookingRepository with the same transition rules
// as the Postgres repository.
func (r *Repository) Enroll(ctx context.Context, record domain.EnrollmentRecord) (*domain.EnrollmentOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	off, ok := r.offerings[record.ClassID]
	if !ok {
		return nil, domain.ErrClassNotFound
	}

	state, position, err := domain.DecideEnrollment(off, r.hasActiveLocked(record.ClassID, record.UserID))
	if err != nil {
		return nil, err
	}

	record.State = state
	switch state {
	case domain.EnrollmentStateEnrolled:
		off.CapacityCurrent++
	case domain.EnrollmentStateWaitlisted:
		record.Position = &position
		off.WaitlistCount++
	}
	r.offerings[off.ID] = off
	r.enrollments[record.ID] = record

	return &domain.EnrollmentOutcome{Record: record, Offering: off}, nil
}

// CancelEnrollment implements domain.BookingRepository.
func (r *Repository) CancelEnrollment(ctx context.Context, classID, userID string, now time.Time) (*domain.CancelResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	off, ok := r.offerings[classID]
	if !ok {
		return nil, domain.ErrClassNotFound
	}

	record, ok := r.activeRecordLocked(classID, userID)
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}

	wasEnrolled := record.State == domain.EnrollmentStateEnrolled
	oldPosition := record.Position

	record.State = domain.EnrollmentStateCancelled
	record.Position = nil
	record.UpdatedAt = now
	r.enrollments[record.ID] = record

	var promoted *domain.EnrollmentRecord
	if wasEnrolled {
		if head, ok := r.waitlistHeadLocked(classID); ok {
			head.State = domain.EnrollmentStateEnrolled
			head.Position = nil
			head.UpdatedAt = now
			r.enrollments[head.ID] = head
			r.shiftWaitlistLocked(classID, 0)
			off.WaitlistCount--
			promoted = &head
		} else {
			off.CapacityCurrent--
		}
	} else if oldPosition != nil {
		r.shiftWaitlistLocked(classID, *oldPosition)
		off.WaitlistCount--
	}
	r.offerings[classID] = off

	return &domain.CancelResult{Record: record, Offering: off, Promoted: promoted}, nil
}

// EnrollmentsByUser implements domain.BookingRepository. The memory variant
// ignores cursors; it exists for tests and local dev.
func (r *Repository) EnrollmentsByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.UserEnrollment, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.UserEnrollment
	for _, rec := range r.enrollments {
		if rec.UserID != userID || !rec.State.Active() {
			continue
		}
		off := r.offerings[rec.ClassID]
		out = append(out, domain.UserEnrollment{Record: rec, Offering: off})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Offering.StartsAt.Equal(out[j].Offering.StartsAt) {
			return out[i].Offering.StartsAt.After(out[j].Offering.StartsAt)
		}
		return out[i].Offering.ID > out[j].Offering.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil, nil
}

func (r *Repository) hasActiveLocked(classID, userID string) bool {
	_, ok := r.activeRecordLocked(classID, userID)
	return ok
}

func (r *Repository) activeRecordLocked(classID, userID string) (domain.EnrollmentRecord, bool) {
	for _, rec := range r.enrollments {
		if rec.ClassID == classID && rec.UserID == userID && rec.State.Active() {
			return rec, true
		}
	}
	return domain.EnrollmentRecord{}, false
}

func (r *Repository) waitlistHeadLocked(classID string) (domain.EnrollmentRecord, bool) {
	var head domain.EnrollmentRecord
	found := false
	for _, rec := range r.enrollments {
		if rec.ClassID != classID || rec.State != domain.EnrollmentStateWaitlisted || rec.Position == nil {
			continue
		}
		if !found || *rec.Position < *head.Position {
			head = rec
			found = true
		}
	}
	return head, found
}

// shiftWaitlistLocked closes the gap above the departed position so the
// sequence stays gapless.
func (r *Repository) shiftWaitlistLocked(classID string, above int) {
	for id, rec := range r.enrollments {
		if rec.ClassID != classID || rec.State != domain.EnrollmentStateWaitlisted || rec.Position == nil {
			continue
		}
		if *rec.Position > above {
			next := *rec.Position - 1
			rec.Position = &next
			r.enrollments[id] = rec
		}
	}
}
