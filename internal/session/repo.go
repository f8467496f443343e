package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, course_id, teacher_id, session_code, start_at, expires_at, lat, lng, radius_m, nonce, is_active, created_at`

// Insert writes a new session.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, course_id, teacher_id, session_code, start_at, expires_at, lat, lng, radius_m, nonce, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`, s.ID, s.CourseID, s.TeacherID, s.Code, s.StartAt, s.ExpiresAt, s.Lat, s.Lng, s.RadiusM, s.Nonce, s.IsActive)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

// ActiveByCourse returns the course's active unexpired session, if any.
func (r *Repository) ActiveByCourse(ctx context.Context, courseID string, now time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE course_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, courseID, now)
	return scanSession(row)
}

// ByCode returns the first active unexpired session matching a code. Code
// uniqueness is enforced per course only; overlapping codes across courses
// resolve to the most recently started session.
func (r *Repository) ByCode(ctx context.Context, code string, now time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE session_code = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY start_at DESC
		LIMIT 1
	`, code, now)
	return scanSession(row)
}

// ByID returns a session regardless of state.
func (r *Repository) ByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// End flips a session inactive and moves its expiry to now.
func (r *Repository) End(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE, expires_at = $2 WHERE id = $1
	`, id, now)
	return err
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CourseID, &s.TeacherID, &s.Code, &s.StartAt, &s.ExpiresAt,
		&s.Lat, &s.Lng, &s.RadiusM, &s.Nonce, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
