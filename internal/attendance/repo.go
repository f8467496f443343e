package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists the attendance ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByMatric returns the session's record for a matric number, if any.
func (r *Repository) FindByMatric(ctx context.Context, sessionID, matric string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, course_id, student_id, matric_no, device_fingerprint,
		       lat, lng, accuracy, distance_m, status, reason, submitted_at, receipt_signature
		FROM attendance_records
		WHERE session_id = $1 AND matric_no = $2
	`, sessionID, matric)
	return scanRecord(row)
}

// FindByFingerprint returns who already used a fingerprint in a session.
func (r *Repository) FindByFingerprint(ctx context.Context, sessionID, fingerprint string) (*DeviceHolder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.name, ar.matric_no, ar.submitted_at
		FROM attendance_records ar
		JOIN students s ON s.id = ar.student_id
		WHERE ar.session_id = $1 AND ar.device_fingerprint = $2
	`, sessionID, fingerprint)
	var h DeviceHolder
	if err := row.Scan(&h.StudentName, &h.MatricNo, &h.SubmittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

// Insert writes a new ledger record. The two per-session unique constraints
// are the safety net against concurrent duplicates; a violation surfaces as
// the matching duplicate sentinel instead of a raw driver error.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, course_id, student_id, matric_no, device_fingerprint,
			 lat, lng, accuracy, distance_m, status, reason, submitted_at, receipt_signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING submitted_at
	`, rec.ID, rec.SessionID, rec.CourseID, rec.StudentID, rec.MatricNo, rec.DeviceFingerprint,
		rec.Lat, rec.Lng, rec.Accuracy, rec.DistanceM, rec.Status, rec.Reason, rec.SubmittedAt, rec.ReceiptSignature)
	if err := row.Scan(&rec.SubmittedAt); err != nil {
		return Record{}, mapInsertErr(err)
	}
	return rec, nil
}

// TouchDevice upserts the forensic device-tracking row for a session.
func (r *Repository) TouchDevice(ctx context.Context, seen DeviceSeen) error {
	meta, err := json.Marshal(seen.Meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_devices (session_id, device_fingerprint, student_id, meta, last_seen_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, device_fingerprint) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			meta = EXCLUDED.meta,
			last_seen_at = EXCLUDED.last_seen_at
	`, seen.SessionID, seen.Fingerprint, seen.StudentID, meta, seen.LastSeenAt)
	return err
}

// ListBySession returns the session's ledger ordered by submission time.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, course_id, student_id, matric_no, device_fingerprint,
		       lat, lng, accuracy, distance_m, status, reason, submitted_at, receipt_signature
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY submitted_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.CourseID, &rec.StudentID, &rec.MatricNo,
			&rec.DeviceFingerprint, &rec.Lat, &rec.Lng, &rec.Accuracy, &rec.DistanceM,
			&rec.Status, &rec.Reason, &rec.SubmittedAt, &rec.ReceiptSignature); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Unique constraint names from migrations/001_init.sql.
const (
	matricConstraint = "attendance_records_session_matric_key"
	deviceConstraint = "attendance_records_session_device_key"
)

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case matricConstraint:
			return errDuplicateSubmission
		case deviceConstraint:
			return errDuplicateDevice
		}
	}
	return err
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.CourseID, &rec.StudentID, &rec.MatricNo,
		&rec.DeviceFingerprint, &rec.Lat, &rec.Lng, &rec.Accuracy, &rec.DistanceM,
		&rec.Status, &rec.Reason, &rec.SubmittedAt, &rec.ReceiptSignature)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
