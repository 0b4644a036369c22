package domain

import "time"

// EnrollmentState is the persisted state of an enrollment record. A request
// is "pending" only for the duration of the enrollment transaction; it never
// persists in that state.
type EnrollmentState string

const (
	EnrollmentStateEnrolled   EnrollmentState = "enrolled"
	EnrollmentStateWaitlisted EnrollmentState = "waitlisted"
	EnrollmentStateCancelled  EnrollmentState = "cancelled"
)

// Active reports whether the state still claims (or queues for) a slot.
func (s EnrollmentState) Active() bool {
	return s == EnrollmentStateEnrolled || s == EnrollmentStateWaitlisted
}

// EnrollmentRecord ties a user to a class offering. Position is set only
// while the record is waitlisted and denotes FIFO order starting at 1.
type EnrollmentRecord struct {
	ID        string
	ClassID   string
	UserID    string
	State     EnrollmentState
	Position  *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnrollmentOutcome reports the result of an enrollment request together
// with the post-transition offering snapshot.
type EnrollmentOutcome struct {
	Record   EnrollmentRecord
	Offering ClassOffering
}

// CancelResult reports a cancellation and, when the freed slot was handed to
// the head of the waitlist, the promoted record.
type CancelResult struct {
	Record   EnrollmentRecord
	Offering ClassOffering
	Promoted *EnrollmentRecord
}

// UserEnrollment joins an enrollment record with its class offering for the
// my-classes listing.
type UserEnrollment struct {
	Record   EnrollmentRecord
	Offering ClassOffering
}

// UserClasses partitions a user's active enrollments around the current time.
type UserClasses struct {
	Upcoming []UserEnrollment
	Past     []UserEnrollment
}

// DecideEnrollment applies the admission rule to a locked offering snapshot.
// It returns the state the new record should take and, for waitlisted
// records, the assigned position. Callers must hold the offering's
// serialization point (row lock or equivalent) so that the capacity check
// and the subsequent counter update are atomic.
func DecideEnrollment(off ClassOffering, hasActiveRecord bool) (EnrollmentState, int, error) {
	if hasActiveRecord {
		return "", 0, ErrAlreadyActive
	}
	if off.Cancelled() {
		return "", 0, ErrClassCancelled
	}
	if off.CapacityCurrent < off.CapacityMax {
		return EnrollmentStateEnrolled, 0, nil
	}
	return EnrollmentStateWaitlisted, off.WaitlistCount + 1, nil
}
