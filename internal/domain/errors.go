package domain

import "errors"

var (
	// ErrFacilityNotFound is returned when no facility matches the check-in input.
	ErrFacilityNotFound = errors.New("facility not found")
	// ErrClassNotFound is returned when a class offering cannot be located.
	ErrClassNotFound = errors.New("class offering not found")
	// ErrClassCancelled is returned when enrolling into a cancelled offering.
	ErrClassCancelled = errors.New("class offering is cancelled")
	// ErrAlreadyActive indicates the user already holds an enrolled or
	// waitlisted record for the class.
	ErrAlreadyActive = errors.New("user already has an active enrollment for class")
	// ErrEnrollmentNotFound is returned when cancelling a record that does
	// not exist or is no longer active.
	ErrEnrollmentNotFound = errors.New("active enrollment not found")
	// ErrConflict indicates the request lost a race on the class row and the
	// caller should re-fetch and retry once.
	ErrConflict = errors.New("concurrent enrollment conflict")
)
