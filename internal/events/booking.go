// Package events defines the payloads emitted by the booking outbox.
package events

import "time"

// EnrollmentCreated is emitted when an enrollment request is accepted,
// whether the user was enrolled directly or queued on the waitlist.
type EnrollmentCreated struct {
	EnrollmentID string    `json:"enrollment_id"`
	ClassID      string    `json:"class_id"`
	FacilityID   int64     `json:"facility_id"`
	UserID       string    `json:"user_id"`
	State        string    `json:"state"`
	Position     *int      `json:"position,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EnrollmentStateChanged tracks transitions between enrolled, waitlisted,
// and cancelled, including waitlist promotions.
type EnrollmentStateChanged struct {
	EnrollmentID string    `json:"enrollment_id"`
	ClassID      string    `json:"class_id"`
	UserID       string    `json:"user_id"`
	State        string    `json:"state"`
	OccurredAt   time.Time `json:"occurred_at"`
	Reason       string    `json:"reason,omitempty"`
}
