package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "unitrack_submissions_total",
	Help: "Attendance submissions by pipeline outcome.",
}, []string{"outcome"})

const (
	outcomeAccepted         = "accepted"
	outcomeSessionNotFound  = "session_not_found"
	outcomeStudentNotFound  = "student_not_found"
	outcomeNotEnrolled      = "not_enrolled"
	outcomeLevelMismatch    = "level_mismatch"
	outcomeAlreadySubmitted = "already_submitted"
	outcomeDeviceInUse      = "device_in_use"
	outcomeSessionExpired   = "session_expired"
	outcomeOutOfRange       = "out_of_range"
	outcomeInternalError    = "internal_error"
)
