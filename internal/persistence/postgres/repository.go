package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/booking/internal/domain"
	"example.com/booking/internal/events"
)

const offeringColumns = `class_id, facility_id, name, starts_at, ends_at, skill_level, price_cents, coach_id,
        capacity_min, capacity_max, capacity_current, waitlist_count, cancelled_at`

const enrollmentColumns = `enrollment_id, class_id, user_id, state, position, created_at, updated_at`

// Repository provides Postgres-backed persistence for facilities, class
// offerings, enrollments, and the outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListFacilities returns all facilities ordered by name.
func (r *Repository) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	rows, err := r.pool.Query(ctx, `SELECT facility_id, name, address, access_code FROM facilities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Facility
	for rows.Next() {
		var f domain.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Address, &f.AccessCode); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FacilityByID looks up a facility by its numeric identifier.
func (r *Repository) FacilityByID(ctx context.Context, id int64) (*domain.Facility, error) {
	return r.facilityBy(ctx, `SELECT facility_id, name, address, access_code FROM facilities WHERE facility_id=$1`, id)
}

// FacilityByAccessCode looks up a facility by its check-in code.
func (r *Repository) FacilityByAccessCode(ctx context.Context, code string) (*domain.Facility, error) {
	return r.facilityBy(ctx, `SELECT facility_id, name, address, access_code FROM facilities WHERE access_code=$1`, code)
}

func (r *Repository) facilityBy(ctx context.Context, query string, arg interface{}) (*domain.Facility, error) {
	var f domain.Facility
	err := r.pool.QueryRow(ctx, query, arg).Scan(&f.ID, &f.Name, &f.Address, &f.AccessCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// OfferingByID fetches one class offering without locking it.
func (r *Repository) OfferingByID(ctx context.Context, classID string) (*domain.ClassOffering, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+offeringColumns+` FROM class_offerings WHERE class_id=$1`, classID)
	off, err := scanOffering(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return off, nil
}

// OfferingsForWeek returns a facility's offerings with starts_at in
// [weekStart, weekEnd), ordered for the weekly projection.
func (r *Repository) OfferingsForWeek(ctx context.Context, facilityID int64, weekStart, weekEnd time.Time) ([]domain.ClassOffering, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+offeringColumns+` FROM class_offerings
         WHERE facility_id=$1 AND starts_at >= $2 AND starts_at < $3
         ORDER BY starts_at, class_id`,
		facilityID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClassOffering
	for rows.Next() {
		off, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *off)
	}
	return out, rows.Err()
}

// Enroll applies the admission rule inside a single transaction. The class
// row is locked with FOR UPDATE so the capacity check and increment are
// atomic against concurrent requests; the enrollment insert and outbox
// events commit with it or not at all.
func (r *Repository) Enroll(ctx context.Context, record domain.EnrollmentRecord) (outcome *domain.EnrollmentOutcome, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
			err = mapPgError(err)
		}
	}()

	off, err := lockOffering(ctx, tx, record.ClassID)
	if err != nil {
		return nil, err
	}

	var active int
	if err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE class_id=$1 AND user_id=$2 AND state IN ('enrolled','waitlisted')`,
		record.ClassID, record.UserID,
	).Scan(&active); err != nil {
		return nil, err
	}

	state, position, err := domain.DecideEnrollment(*off, active > 0)
	if err != nil {
		return nil, err
	}

	record.State = state
	switch state {
	case domain.EnrollmentStateEnrolled:
		if _, err = tx.Exec(ctx,
			`UPDATE class_offerings SET capacity_current = capacity_current + 1 WHERE class_id=$1`,
			record.ClassID,
		); err != nil {
			return nil, err
		}
		off.CapacityCurrent++
	case domain.EnrollmentStateWaitlisted:
		record.Position = &position
		if _, err = tx.Exec(ctx,
			`UPDATE class_offerings SET waitlist_count = waitlist_count + 1 WHERE class_id=$1`,
			record.ClassID,
		); err != nil {
			return nil, err
		}
		off.WaitlistCount++
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		record.ID, record.ClassID, record.UserID, record.State, record.Position, record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, record, "enrollment.created", events.EnrollmentCreated{
		EnrollmentID: record.ID,
		ClassID:      record.ClassID,
		FacilityID:   off.FacilityID,
		UserID:       record.UserID,
		State:        string(record.State),
		Position:     record.Position,
		OccurredAt:   record.CreatedAt,
	}); err != nil {
		return nil, err
	}
	if err = r.insertOutbox(ctx, tx, record, "enrollment.state_changed", events.EnrollmentStateChanged{
		EnrollmentID: record.ID,
		ClassID:      record.ClassID,
		UserID:       record.UserID,
		State:        string(record.State),
		OccurredAt:   record.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.EnrollmentOutcome{Record: record, Offering: *off}, nil
}

// CancelEnrollment cancels the user's active record and, when the record
// held a slot, promotes the head of the waitlist in the same transaction.
func (r *Repository) CancelEnrollment(ctx context.Context, classID, userID string, now time.Time) (result *domain.CancelResult, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
			err = mapPgError(err)
		}
	}()

	off, err := lockOffering(ctx, tx, classID)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
         WHERE class_id=$1 AND user_id=$2 AND state IN ('enrolled','waitlisted')`,
		classID, userID)
	record, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}

	wasEnrolled := record.State == domain.EnrollmentStateEnrolled
	oldPosition := record.Position

	if _, err = tx.Exec(ctx,
		`UPDATE enrollments SET state='cancelled', position=NULL, updated_at=$2 WHERE enrollment_id=$1`,
		record.ID, now,
	); err != nil {
		return nil, err
	}
	record.State = domain.EnrollmentStateCancelled
	record.Position = nil
	record.UpdatedAt = now

	if err = r.insertOutbox(ctx, tx, *record, "enrollment.state_changed", events.EnrollmentStateChanged{
		EnrollmentID: record.ID,
		ClassID:      record.ClassID,
		UserID:       record.UserID,
		State:        string(domain.EnrollmentStateCancelled),
		OccurredAt:   now,
		Reason:       "user_cancelled",
	}); err != nil {
		return nil, err
	}

	var promoted *domain.EnrollmentRecord
	if wasEnrolled {
		off.CapacityCurrent--
		promoted, err = r.promoteHead(ctx, tx, off, now)
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			// Net zero: the freed slot went straight to the promoted record.
			off.CapacityCurrent++
			off.WaitlistCount--
		} else if _, err = tx.Exec(ctx,
			`UPDATE class_offerings SET capacity_current = capacity_current - 1 WHERE class_id=$1`,
			classID,
		); err != nil {
			return nil, err
		}
	} else if oldPosition != nil {
		// Close the gap left by a departing waitlisted record.
		if _, err = tx.Exec(ctx,
			`UPDATE class_offerings SET waitlist_count = waitlist_count - 1 WHERE class_id=$1`,
			classID,
		); err != nil {
			return nil, err
		}
		if _, err = tx.Exec(ctx,
			`UPDATE enrollments SET position = position - 1
             WHERE class_id=$1 AND state='waitlisted' AND position > $2`,
			classID, *oldPosition,
		); err != nil {
			return nil, err
		}
		off.WaitlistCount--
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.CancelResult{Record: *record, Offering: *off, Promoted: promoted}, nil
}

// promoteHead hands the freed slot to the lowest-position waitlisted record.
// Counter updates and the position shift happen here; the caller adjusts its
// in-memory snapshot.
func (r *Repository) promoteHead(ctx context.Context, tx pgx.Tx, off *domain.ClassOffering, now time.Time) (*domain.EnrollmentRecord, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
         WHERE class_id=$1 AND state='waitlisted'
         ORDER BY position
         LIMIT 1
         FOR UPDATE`,
		off.ID)
	head, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE enrollments SET state='enrolled', position=NULL, updated_at=$2 WHERE enrollment_id=$1`,
		head.ID, now,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE enrollments SET position = position - 1 WHERE class_id=$1 AND state='waitlisted'`,
		off.ID,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE class_offerings SET waitlist_count = waitlist_count - 1 WHERE class_id=$1`,
		off.ID,
	); err != nil {
		return nil, err
	}

	head.State = domain.EnrollmentStateEnrolled
	head.Position = nil
	head.UpdatedAt = now

	if err := r.insertOutbox(ctx, tx, *head, "enrollment.state_changed", events.EnrollmentStateChanged{
		EnrollmentID: head.ID,
		ClassID:      head.ClassID,
		UserID:       head.UserID,
		State:        string(domain.EnrollmentStateEnrolled),
		OccurredAt:   now,
		Reason:       "waitlist_promotion",
	}); err != nil {
		return nil, err
	}
	return head, nil
}

// EnrollmentsByUser returns the user's active enrollments joined with their
// offerings, newest class first, with cursor pagination.
func (r *Repository) EnrollmentsByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.UserEnrollment, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT e.enrollment_id, e.class_id, e.user_id, e.state, e.position, e.created_at, e.updated_at,
            c.class_id, c.facility_id, c.name, c.starts_at, c.ends_at, c.skill_level, c.price_cents, c.coach_id,
            c.capacity_min, c.capacity_max, c.capacity_current, c.waitlist_count, c.cancelled_at
        FROM enrollments e
        JOIN class_offerings c ON c.class_id = e.class_id
        WHERE e.user_id=$1 AND e.state IN ('enrolled','waitlisted')`

	if cursor != nil {
		query += ` AND (c.starts_at, c.class_id) < ($3, $4)`
		args = append(args, cursor.StartsAt, cursor.ID)
	}
	query += ` ORDER BY c.starts_at DESC, c.class_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.UserEnrollment, 0, limit)
	for rows.Next() {
		var item domain.UserEnrollment
		if err := rows.Scan(
			&item.Record.ID, &item.Record.ClassID, &item.Record.UserID, &item.Record.State,
			&item.Record.Position, &item.Record.CreatedAt, &item.Record.UpdatedAt,
			&item.Offering.ID, &item.Offering.FacilityID, &item.Offering.Name,
			&item.Offering.StartsAt, &item.Offering.EndsAt, &item.Offering.SkillLevel,
			&item.Offering.PriceCents, &item.Offering.CoachID,
			&item.Offering.CapacityMin, &item.Offering.CapacityMax, &item.Offering.CapacityCurrent,
			&item.Offering.WaitlistCount, &item.Offering.CancelledAt,
		); err != nil {
			return nil, nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartsAt: last.Offering.StartsAt, ID: last.Offering.ID}
	}
	return results, next, nil
}

// lockOffering loads the class row under FOR UPDATE, the serialization point
// for all capacity transitions.
func lockOffering(ctx context.Context, tx pgx.Tx, classID string) (*domain.ClassOffering, error) {
	row := tx.QueryRow(ctx, `SELECT `+offeringColumns+` FROM class_offerings WHERE class_id=$1 FOR UPDATE`, classID)
	off, err := scanOffering(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}
	return off, nil
}

func scanOffering(row pgx.Row) (*domain.ClassOffering, error) {
	var off domain.ClassOffering
	if err := row.Scan(
		&off.ID, &off.FacilityID, &off.Name, &off.StartsAt, &off.EndsAt, &off.SkillLevel,
		&off.PriceCents, &off.CoachID, &off.CapacityMin, &off.CapacityMax, &off.CapacityCurrent,
		&off.WaitlistCount, &off.CancelledAt,
	); err != nil {
		return nil, err
	}
	return &off, nil
}

func scanEnrollment(row pgx.Row) (*domain.EnrollmentRecord, error) {
	var rec domain.EnrollmentRecord
	if err := row.Scan(&rec.ID, &rec.ClassID, &rec.UserID, &rec.State, &rec.Position, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// mapPgError translates constraint and serialization failures into domain
// errors the caller can act on.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation on the active-enrollment index
		return domain.ErrAlreadyActive
	case "40001", "55P03": // serialization_failure, lock_not_available
		return domain.ErrConflict
	}
	return err
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, record domain.EnrollmentRecord, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(record)
	dedupeKey := fmt.Sprintf("%s:%s:%s", record.ID, eventType, record.State)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"enrollment",
		record.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.EnrollmentRecord) string
}

var eventCatalog = map[string]EventMetadata{
	"enrollment.created": {
		Topic:         "booking_events",
		SchemaSubject: "booking_events-value",
		PartitionKeyFn: func(rec domain.EnrollmentRecord) string {
			return rec.ClassID
		},
	},
	"enrollment.state_changed": {
		Topic:         "enrollment_state_changed",
		SchemaSubject: "enrollment_state_changed-value",
		PartitionKeyFn: func(rec domain.EnrollmentRecord) string {
			return rec.ID
		},
	},
}
