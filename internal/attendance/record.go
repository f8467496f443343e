package attendance

import (
	"time"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/device"
)

// Status classifies a ledger entry.
type Status string

const (
	StatusPresent       Status = "present"
	StatusAbsent        Status = "absent"
	StatusRejected      Status = "rejected"
	StatusManualPresent Status = "manual_present"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusRejected, StatusManualPresent:
		return true
	default:
		return false
	}
}

// Record is the immutable outcome of one accepted verification run (or a
// teacher's manual override). Uniqueness per session is enforced on both the
// matric number and the device fingerprint.
type Record struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	CourseID          string    `json:"course_id"`
	StudentID         string    `json:"student_id"`
	MatricNo          string    `json:"matric_no"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	Accuracy          *float64  `json:"accuracy,omitempty"`
	DistanceM         float64   `json:"distance_from_location"`
	Status            Status    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
	ReceiptSignature  string    `json:"receipt_signature"`
}

// DeviceHolder identifies who already used a fingerprint in a session.
type DeviceHolder struct {
	StudentName string
	MatricNo    string
	SubmittedAt time.Time
}

// DeviceSeen is the forensic trail for a device within a session, refreshed
// on every accepted submission.
type DeviceSeen struct {
	SessionID   string
	Fingerprint string
	StudentID   string
	Meta        device.Info
	LastSeenAt  time.Time
}
