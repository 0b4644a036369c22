package domain

import (
	"sort"
	"time"
)

// WeekStart normalizes any timestamp to the Monday 00:00 UTC of its week.
// Every date in the same week maps to the same anchor, which keeps the
// weekly projection idempotent.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := t.Truncate(24 * time.Hour)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return day.AddDate(0, 0, -offset)
}

// ScheduledOffering pairs an offering with its derived availability for
// display in the weekly schedule.
type ScheduledOffering struct {
	ClassOffering
	Status AvailabilityStatus
}

// DaySchedule holds one day's offerings ordered by start time.
type DaySchedule struct {
	Date      time.Time
	Offerings []ScheduledOffering
}

// WeekView is the read-only weekly projection for one facility. Days always
// spans Monday through Sunday, including days without offerings.
type WeekView struct {
	FacilityID int64
	WeekStart  time.Time
	Days       []DaySchedule
}

// BuildWeekView groups offerings into the seven days starting at weekStart.
// Offerings outside the week are dropped. Ordering is by start time with ID
// as tie-breaker so repeated builds over the same rows are identical.
func BuildWeekView(facilityID int64, weekStart time.Time, offerings []ClassOffering) WeekView {
	view := WeekView{
		FacilityID: facilityID,
		WeekStart:  weekStart,
		Days:       make([]DaySchedule, 7),
	}
	for i := range view.Days {
		view.Days[i].Date = weekStart.AddDate(0, 0, i)
	}

	sorted := make([]ClassOffering, len(offerings))
	copy(sorted, offerings)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].StartsAt.Equal(sorted[j].StartsAt) {
			return sorted[i].StartsAt.Before(sorted[j].StartsAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	weekEnd := weekStart.AddDate(0, 0, 7)
	for _, off := range sorted {
		start := off.StartsAt.UTC()
		if start.Before(weekStart) || !start.Before(weekEnd) {
			continue
		}
		idx := int(start.Sub(weekStart).Hours()) / 24
		view.Days[idx].Offerings = append(view.Days[idx].Offerings, ScheduledOffering{
			ClassOffering: off,
			Status:        off.Availability(),
		})
	}
	return view
}
