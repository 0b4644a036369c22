package domain

import "regexp"

// Facility is a physical court location offering bookable classes.
// Facilities are administered externally; this service only reads them.
type Facility struct {
	ID         int64
	Name       string
	Address    string
	AccessCode string
}

// accessCodePattern matches the six-character kiosk check-in codes printed
// at the facility front desk.
var accessCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// IsAccessCode reports whether the input looks like a facility check-in code.
func IsAccessCode(input string) bool {
	return accessCodePattern.MatchString(input)
}
