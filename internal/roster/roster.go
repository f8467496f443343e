// Package roster holds the people side of attendance: students, courses,
// enrollments, and the eligibility rules gating a submission.
package roster

import (
	"fmt"
	"strings"
)

// Student is a registered matriculable person. MatricNo is stored normalized
// and is unique across the system.
type Student struct {
	ID       string `json:"id"`
	MatricNo string `json:"matric_no"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Level    *int   `json:"level,omitempty"`
}

// Course is a teachable unit owned by one teacher.
type Course struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
	Level       *int   `json:"level,omitempty"`
}

// Teacher owns courses and sessions.
type Teacher struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NormalizeMatric canonicalizes a matric number for storage and lookup.
func NormalizeMatric(matric string) string {
	return strings.ToUpper(strings.TrimSpace(matric))
}

// NotEnrolledError identifies the course and its owner so the student knows
// whom to contact, without exposing anything about other students.
type NotEnrolledError struct {
	CourseCode  string
	CourseTitle string
	TeacherName string
}

func (e *NotEnrolledError) Error() string {
	return fmt.Sprintf("not enrolled in %s (%s), taught by %s", e.CourseCode, e.CourseTitle, e.TeacherName)
}

// LevelMismatchError reports an advisory level conflict.
type LevelMismatchError struct {
	StudentLevel int
	CourseLevel  int
}

func (e *LevelMismatchError) Error() string {
	return fmt.Sprintf("student level %d does not match course level %d", e.StudentLevel, e.CourseLevel)
}

// CheckLevelMatch compares a student's level against a course's. The check is
// advisory: if either side is missing the pair passes.
func CheckLevelMatch(studentLevel, courseLevel *int) error {
	if studentLevel == nil || courseLevel == nil {
		return nil
	}
	if *studentLevel != *courseLevel {
		return &LevelMismatchError{StudentLevel: *studentLevel, CourseLevel: *courseLevel}
	}
	return nil
}
