package roster

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists roster data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StudentByMatric looks up a student by normalized matric number.
func (r *Repository) StudentByMatric(ctx context.Context, matric string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, matric_no, name, email, level FROM students WHERE matric_no = $1
	`, NormalizeMatric(matric))
	var s Student
	if err := row.Scan(&s.ID, &s.MatricNo, &s.Name, &s.Email, &s.Level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpdateStudentLevel syncs the stored level with a freshly supplied one.
func (r *Repository) UpdateStudentLevel(ctx context.Context, studentID string, level int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students SET level = $2, updated_at = NOW() WHERE id = $1
	`, studentID, level)
	return err
}

// IsEnrolled reports whether the student has an enrollment row for the course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)
	`, courseID, studentID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CourseByID returns a course with its owning teacher's name joined in.
func (r *Repository) CourseByID(ctx context.Context, courseID string) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.code, c.title, c.teacher_id, t.name, c.level
		FROM courses c
		JOIN teachers t ON t.id = c.teacher_id
		WHERE c.id = $1
	`, courseID)
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Title, &c.TeacherID, &c.TeacherName, &c.Level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// TeacherByEmail returns a teacher when the email and API key both match.
func (r *Repository) TeacherByEmail(ctx context.Context, email, apiKey string) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email FROM teachers WHERE email = $1 AND api_key = $2
	`, email, apiKey)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// EnrolledEmails lists the enrolled students' emails for notifications.
func (r *Repository) EnrolledEmails(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.email
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = $1 AND s.email <> ''
		ORDER BY s.matric_no
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// StudentByID returns a student by primary id.
func (r *Repository) StudentByID(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, matric_no, name, email, level FROM students WHERE id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.MatricNo, &s.Name, &s.Email, &s.Level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
