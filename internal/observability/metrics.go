package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enrollmentPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "booking_service",
		Subsystem: "enrollment",
		Name:      "last_enrollment_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent enrollment transition committed to Postgres.",
	})
	enrollmentDecisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking_service",
		Subsystem: "enrollment",
		Name:      "decisions_total",
		Help:      "Enrollment request outcomes by resulting state.",
	}, []string{"state"})
	waitlistPromotionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booking_service",
		Subsystem: "enrollment",
		Name:      "waitlist_promotions_total",
		Help:      "Number of waitlisted records promoted after a cancellation freed a slot.",
	})
)

func init() {
	prometheus.MustRegister(enrollmentPersistGauge, enrollmentDecisionCounter, waitlistPromotionCounter)
}

// RecordEnrollmentPersisted updates the persistence watermark gauge.
func RecordEnrollmentPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	enrollmentPersistGauge.Set(float64(ts.Unix()))
}

// RecordEnrollmentDecision counts an enrollment outcome by resulting state.
func RecordEnrollmentDecision(state string) {
	enrollmentDecisionCounter.WithLabelValues(state).Inc()
}

// RecordWaitlistPromotion counts a FIFO waitlist promotion.
func RecordWaitlistPromotion() {
	waitlistPromotionCounter.Inc()
}
