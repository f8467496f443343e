package attendance

import (
	"errors"
	"fmt"
	"time"
)

// ErrStudentNotFound means the matric number is not registered.
var ErrStudentNotFound = errors.New("matric number not registered")

// ErrSessionExpired fires on the late expiry re-check, when a session lapsed
// between code resolution and commit.
var ErrSessionExpired = errors.New("session expired")

// AlreadySubmittedError rejects a second submission for the same student in
// the same session, echoing what the first one recorded.
type AlreadySubmittedError struct {
	PriorStatus Status
	SubmittedAt time.Time
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("attendance already submitted at %s (status %s)",
		e.SubmittedAt.Format(time.RFC3339), e.PriorStatus)
}

// DeviceInUseError rejects a second student on a device already used in the
// session. The prior submitter is named deliberately, as a fraud signal to
// whoever is holding the device.
type DeviceInUseError struct {
	StudentName string
	MatricNo    string
	SubmittedAt time.Time
}

func (e *DeviceInUseError) Error() string {
	return fmt.Sprintf("this device already submitted attendance for %s (%s)", e.StudentName, e.MatricNo)
}

// OutOfRangeError rejects a submission outside the session's geofence with
// the measured distance so the student can self-correct. No ledger record is
// written for this outcome.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("you are %.0fm from the class location; allowed radius is %.0fm", e.DistanceM, e.RadiusM)
}

// Race-path sentinels returned by the ledger when the storage constraint, not
// the pre-check, catches a duplicate.
var (
	errDuplicateSubmission = errors.New("duplicate submission for session")
	errDuplicateDevice     = errors.New("duplicate device for session")
)
