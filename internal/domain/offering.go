package domain

import "time"

// ClassOffering is one scheduled class instance at a facility. The capacity
// counters are mutated only through enrollment transactions; everything else
// is owned by the facility's class administration.
type ClassOffering struct {
	ID              string
	FacilityID      int64
	Name            string
	StartsAt        time.Time
	EndsAt          time.Time
	SkillLevel      string
	PriceCents      int
	CoachID         string
	CapacityMin     int
	CapacityMax     int
	CapacityCurrent int
	WaitlistCount   int
	CancelledAt     *time.Time
}

// Cancelled reports whether the offering has been called off upstream.
func (o ClassOffering) Cancelled() bool {
	return o.CancelledAt != nil
}

// Bookable reports whether a direct enrollment slot remains.
func (o ClassOffering) Bookable() bool {
	return !o.Cancelled() && o.CapacityCurrent < o.CapacityMax
}

// Viable reports whether the class has reached its minimum headcount and
// will actually run.
func (o ClassOffering) Viable() bool {
	return o.CapacityCurrent >= o.CapacityMin
}

// AvailabilityCode labels the derived bookability of an offering.
type AvailabilityCode string

const (
	AvailabilityCancelled       AvailabilityCode = "cancelled"
	AvailabilityFull            AvailabilityCode = "full"
	AvailabilityBelowMinimum    AvailabilityCode = "below_minimum"
	AvailabilityLowAvailability AvailabilityCode = "low_availability"
	AvailabilityAvailable       AvailabilityCode = "available"
)

// lowAvailabilityThreshold is the remaining-slot count at or below which an
// otherwise open class is flagged as nearly full.
const lowAvailabilityThreshold = 2

// AvailabilityStatus is a derived, non-persisted summary of an offering's
// bookability. NeededCount is set only for below_minimum, SpotsLeft only for
// low_availability.
type AvailabilityStatus struct {
	Code        AvailabilityCode
	SpotsLeft   int
	NeededCount int
}

// Availability computes the offering's status. Precedence: cancelled beats
// full beats below-minimum beats low-availability.
func (o ClassOffering) Availability() AvailabilityStatus {
	switch {
	case o.Cancelled():
		return AvailabilityStatus{Code: AvailabilityCancelled}
	case o.CapacityCurrent >= o.CapacityMax:
		return AvailabilityStatus{Code: AvailabilityFull}
	case o.CapacityCurrent < o.CapacityMin:
		return AvailabilityStatus{Code: AvailabilityBelowMinimum, NeededCount: o.CapacityMin - o.CapacityCurrent}
	case o.CapacityMax-o.CapacityCurrent <= lowAvailabilityThreshold:
		return AvailabilityStatus{Code: AvailabilityLowAvailability, SpotsLeft: o.CapacityMax - o.CapacityCurrent}
	default:
		return AvailabilityStatus{Code: AvailabilityAvailable}
	}
}
