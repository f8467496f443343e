package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Session is one open attendance window for one course.
type Session struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	TeacherID string    `json:"teacher_id"`
	Code      string    `json:"session_code"`
	StartAt   time.Time `json:"start_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	RadiusM   float64   `json:"radius_m"`
	Nonce     string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the session still accepts submissions at t.
func (s Session) Live(t time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(t)
}

// ErrNotFound covers both unknown and expired sessions so a code-guessing
// client learns nothing from the difference.
var ErrNotFound = errors.New("invalid or expired session code")

// ErrAlreadyExpired rejects an early-end on a session already past expiry.
var ErrAlreadyExpired = errors.New("session already expired")

// ConflictError reports an existing active session blocking a new one, with
// enough detail for the teacher to reuse or end it.
type ConflictError struct {
	ExistingCode string
	ExpiresAt    time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an active session already exists (code %s, expires %s)",
		e.ExistingCode, e.ExpiresAt.Format(time.RFC3339))
}

// Store persists sessions.
type Store interface {
	Insert(ctx context.Context, s Session) (Session, error)
	ActiveByCourse(ctx context.Context, courseID string, now time.Time) (*Session, error)
	ByCode(ctx context.Context, code string, now time.Time) (*Session, error)
	ByID(ctx context.Context, id string) (*Session, error)
	End(ctx context.Context, id string, now time.Time) error
}

// Service owns the session lifecycle: Created -> Active -> Expired (by time)
// or Ended (by teacher action). Both terminal states behave identically for
// code resolution.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a registry backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Start opens a session for a course. At most one active unexpired session is
// allowed per course; a second attempt gets a ConflictError carrying the
// existing code and expiry.
func (s *Service) Start(ctx context.Context, courseID, teacherID string, lat, lng, radiusM float64, duration time.Duration) (Session, error) {
	if radiusM <= 0 {
		return Session{}, errors.New("radius must be positive")
	}
	if duration <= 0 {
		return Session{}, errors.New("duration must be positive")
	}

	now := s.now().UTC()
	if existing, err := s.store.ActiveByCourse(ctx, courseID, now); err != nil {
		return Session{}, err
	} else if existing != nil {
		return Session{}, &ConflictError{ExistingCode: existing.Code, ExpiresAt: existing.ExpiresAt}
	}

	code, err := generateCode()
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		TeacherID: teacherID,
		Code:      code,
		StartAt:   now,
		ExpiresAt: now.Add(duration),
		Lat:       lat,
		Lng:       lng,
		RadiusM:   radiusM,
		Nonce:     uuid.NewString(),
		IsActive:  true,
	}
	created, err := s.store.Insert(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	sessionsStartedTotal.Inc()
	return created, nil
}

// ResolveByCode finds the active unexpired session for a submitted code.
// Unknown and expired codes both come back as ErrNotFound.
func (s *Service) ResolveByCode(ctx context.Context, code string) (Session, error) {
	sess, err := s.store.ByCode(ctx, code, s.now().UTC())
	if err != nil {
		return Session{}, err
	}
	if sess == nil {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// ByID reloads a session. Submission handling re-reads expiry late in the
// pipeline through this instead of trusting its initial snapshot.
func (s *Service) ByID(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.ByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess == nil {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// EndEarly closes a session before its expiry. Only the owning teacher may
// end it; sessions not owned by the caller look like they don't exist.
func (s *Service) EndEarly(ctx context.Context, sessionID, teacherID string) (Session, error) {
	sess, err := s.store.ByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess == nil || sess.TeacherID != teacherID {
		return Session{}, ErrNotFound
	}
	now := s.now().UTC()
	if !sess.ExpiresAt.After(now) {
		return Session{}, ErrAlreadyExpired
	}
	if err := s.store.End(ctx, sess.ID, now); err != nil {
		return Session{}, err
	}
	sess.ExpiresAt = now
	sess.IsActive = false
	return *sess, nil
}

// generateCode returns a 4-digit numeric code. Codes are only guaranteed
// distinct per course (one active session per course); two courses can issue
// the same code during overlapping windows, in which case code resolution
// takes the first active match.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
