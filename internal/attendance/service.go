package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/device"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/geo"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/receipt"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/roster"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/session"
)

// Sessions resolves submitted codes and re-reads session state.
type Sessions interface {
	ResolveByCode(ctx context.Context, code string) (session.Session, error)
	ByID(ctx context.Context, id string) (session.Session, error)
}

// Roster answers identity and enrollment questions for the pipeline.
type Roster interface {
	StudentByMatric(ctx context.Context, matric string) (*roster.Student, error)
	UpdateStudentLevel(ctx context.Context, studentID string, level int) error
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	CourseByID(ctx context.Context, courseID string) (*roster.Course, error)
}

// Ledger is the append-only store of verification outcomes.
type Ledger interface {
	FindByMatric(ctx context.Context, sessionID, matric string) (*Record, error)
	FindByFingerprint(ctx context.Context, sessionID, fingerprint string) (*DeviceHolder, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	TouchDevice(ctx context.Context, seen DeviceSeen) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
}

// Submission is the pre-validated input to one pipeline run.
type Submission struct {
	MatricNo    string
	SessionCode string
	Lat         float64
	Lng         float64
	Accuracy    *float64
	Device      device.Info
	UserAgent   string
	ClientIP    string
	Level       *int
}

// Result echoes everything a client needs to render an accepted submission.
type Result struct {
	Record       Record   `json:"record"`
	StudentName  string   `json:"student_name"`
	CourseCode   string   `json:"course_code"`
	CourseTitle  string   `json:"course_title"`
	TeacherName  string   `json:"teacher_name"`
	SessionCode  string   `json:"session_code"`
	ChecksPassed []string `json:"checks_passed"`
}

// Service runs the submission verification pipeline. Each gate is a hard
// stop: the first failure ends the run and nothing is written before commit.
type Service struct {
	sessions Sessions
	roster   Roster
	ledger   Ledger
	now      func() time.Time
}

// NewService wires the pipeline's collaborators.
func NewService(sessions Sessions, ros Roster, ledger Ledger) *Service {
	return &Service{sessions: sessions, roster: ros, ledger: ledger, now: time.Now}
}

// Submit runs the eleven-gate verification pipeline. It is deliberately not
// idempotent: an identical resubmission fails the duplicate gate.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	var checks []string
	pass := func(name string) { checks = append(checks, name) }

	// Gate 1: resolve the session by code.
	sess, err := s.sessions.ResolveByCode(ctx, sub.SessionCode)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			submissionsTotal.WithLabelValues(outcomeSessionNotFound).Inc()
		} else {
			submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		}
		return Result{}, err
	}
	pass("session_valid")

	// Gate 2: resolve the student.
	matric := roster.NormalizeMatric(sub.MatricNo)
	student, err := s.roster.StudentByMatric(ctx, matric)
	if err != nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	}
	if student == nil {
		submissionsTotal.WithLabelValues(outcomeStudentNotFound).Inc()
		return Result{}, ErrStudentNotFound
	}
	pass("student_found")

	// Gate 3 (side effect, not a gate): sync a freshly supplied level.
	if sub.Level != nil && (student.Level == nil || *student.Level != *sub.Level) {
		if err := s.roster.UpdateStudentLevel(ctx, student.ID, *sub.Level); err != nil {
			log.Printf("level sync for %s failed: %v", matric, err)
		} else {
			student.Level = sub.Level
		}
	}

	course, err := s.roster.CourseByID(ctx, sess.CourseID)
	if err != nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	}
	if course == nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, errors.New("session references unknown course")
	}

	// Gate 4: enrollment.
	enrolled, err := s.roster.IsEnrolled(ctx, sess.CourseID, student.ID)
	if err != nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	}
	if !enrolled {
		submissionsTotal.WithLabelValues(outcomeNotEnrolled).Inc()
		return Result{}, &roster.NotEnrolledError{
			CourseCode:  course.Code,
			CourseTitle: course.Title,
			TeacherName: course.TeacherName,
		}
	}
	pass("enrollment")

	// Gate 5: level match, advisory when either side is missing.
	if err := roster.CheckLevelMatch(student.Level, course.Level); err != nil {
		submissionsTotal.WithLabelValues(outcomeLevelMismatch).Inc()
		return Result{}, err
	}
	pass("level_match")

	// Gate 6: one submission per student per session.
	if prior, err := s.ledger.FindByMatric(ctx, sess.ID, matric); err != nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	} else if prior != nil {
		submissionsTotal.WithLabelValues(outcomeAlreadySubmitted).Inc()
		return Result{}, &AlreadySubmittedError{PriorStatus: prior.Status, SubmittedAt: prior.SubmittedAt}
	}
	pass("no_prior_submission")

	// Gate 7: derive the duplication key for this device.
	fingerprint := device.Derive(sub.Device, sub.UserAgent, sub.ClientIP)
	pass("fingerprint_derived")

	// Gate 8: one device per session.
	if holder, err := s.ledger.FindByFingerprint(ctx, sess.ID, fingerprint); err != nil {
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	} else if holder != nil {
		submissionsTotal.WithLabelValues(outcomeDeviceInUse).Inc()
		return Result{}, &DeviceInUseError{
			StudentName: holder.StudentName,
			MatricNo:    holder.MatricNo,
			SubmittedAt: holder.SubmittedAt,
		}
	}
	pass("device_unused")

	// Gate 9: re-read expiry instead of trusting the gate-1 snapshot; a slow
	// request or an early end must not slip through.
	now := s.now().UTC()
	fresh, err := s.sessions.ByID(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			submissionsTotal.WithLabelValues(outcomeSessionExpired).Inc()
			return Result{}, ErrSessionExpired
		}
		submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
		return Result{}, err
	}
	if !fresh.Live(now) {
		submissionsTotal.WithLabelValues(outcomeSessionExpired).Inc()
		return Result{}, ErrSessionExpired
	}
	pass("session_window")

	// Gate 10: geofence. A rejection here leaves no ledger trace.
	distance := geo.Distance(sess.Lat, sess.Lng, sub.Lat, sub.Lng)
	if distance > sess.RadiusM {
		submissionsTotal.WithLabelValues(outcomeOutOfRange).Inc()
		return Result{}, &OutOfRangeError{DistanceM: distance, RadiusM: sess.RadiusM}
	}
	pass("geofence")

	// Gate 11: commit. The storage constraints still backstop gates 6 and 8
	// against a concurrent twin of this request.
	signature := receipt.Sign(sess.ID, matric, now.UnixMilli(), sess.Nonce)
	rec := Record{
		SessionID:         sess.ID,
		CourseID:          sess.CourseID,
		StudentID:         student.ID,
		MatricNo:          matric,
		DeviceFingerprint: fingerprint,
		Lat:               sub.Lat,
		Lng:               sub.Lng,
		Accuracy:          sub.Accuracy,
		DistanceM:         distance,
		Status:            StatusPresent,
		SubmittedAt:       now,
		ReceiptSignature:  signature,
	}
	rec, err = s.ledger.Insert(ctx, rec)
	if err != nil {
		switch {
		case errors.Is(err, errDuplicateSubmission):
			submissionsTotal.WithLabelValues(outcomeAlreadySubmitted).Inc()
			if prior, perr := s.ledger.FindByMatric(ctx, sess.ID, matric); perr == nil && prior != nil {
				return Result{}, &AlreadySubmittedError{PriorStatus: prior.Status, SubmittedAt: prior.SubmittedAt}
			}
			return Result{}, &AlreadySubmittedError{PriorStatus: StatusPresent, SubmittedAt: now}
		case errors.Is(err, errDuplicateDevice):
			submissionsTotal.WithLabelValues(outcomeDeviceInUse).Inc()
			if holder, herr := s.ledger.FindByFingerprint(ctx, sess.ID, fingerprint); herr == nil && holder != nil {
				return Result{}, &DeviceInUseError{StudentName: holder.StudentName, MatricNo: holder.MatricNo, SubmittedAt: holder.SubmittedAt}
			}
			return Result{}, &DeviceInUseError{SubmittedAt: now}
		default:
			submissionsTotal.WithLabelValues(outcomeInternalError).Inc()
			return Result{}, err
		}
	}
	pass("committed")

	if err := s.ledger.TouchDevice(ctx, DeviceSeen{
		SessionID:   sess.ID,
		Fingerprint: fingerprint,
		StudentID:   student.ID,
		Meta:        sub.Device,
		LastSeenAt:  now,
	}); err != nil {
		// The record is committed; losing the forensic row is not a failure.
		log.Printf("device tracking upsert failed for session %s: %v", sess.ID, err)
	}

	submissionsTotal.WithLabelValues(outcomeAccepted).Inc()
	return Result{
		Record:       rec,
		StudentName:  student.Name,
		CourseCode:   course.Code,
		CourseTitle:  course.Title,
		TeacherName:  course.TeacherName,
		SessionCode:  sess.Code,
		ChecksPassed: checks,
	}, nil
}

// ManualPresent is the teacher override: same ledger, same uniqueness
// constraints, none of the pipeline gates. Only the session's owning teacher
// may use it.
func (s *Service) ManualPresent(ctx context.Context, sessionID, teacherID, matricNo string) (Record, error) {
	sess, err := s.sessions.ByID(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if sess.TeacherID != teacherID {
		return Record{}, session.ErrNotFound
	}

	matric := roster.NormalizeMatric(matricNo)
	student, err := s.roster.StudentByMatric(ctx, matric)
	if err != nil {
		return Record{}, err
	}
	if student == nil {
		return Record{}, ErrStudentNotFound
	}

	now := s.now().UTC()
	rec := Record{
		SessionID: sess.ID,
		CourseID:  sess.CourseID,
		StudentID: student.ID,
		MatricNo:  matric,
		// Synthetic key: keeps the per-session device constraint satisfied
		// without ever colliding with a real fingerprint.
		DeviceFingerprint: "manual:" + student.ID,
		Status:            StatusManualPresent,
		Reason:            "marked present by course teacher",
		SubmittedAt:       now,
		ReceiptSignature:  receipt.Sign(sess.ID, matric, now.UnixMilli(), sess.Nonce),
	}
	rec, err = s.ledger.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, errDuplicateSubmission) || errors.Is(err, errDuplicateDevice) {
			if prior, perr := s.ledger.FindByMatric(ctx, sess.ID, matric); perr == nil && prior != nil {
				return Record{}, &AlreadySubmittedError{PriorStatus: prior.Status, SubmittedAt: prior.SubmittedAt}
			}
			return Record{}, &AlreadySubmittedError{PriorStatus: StatusManualPresent, SubmittedAt: now}
		}
		return Record{}, err
	}
	return rec, nil
}

// Records lists a session's ledger for its owning teacher.
func (s *Service) Records(ctx context.Context, sessionID, teacherID string) ([]Record, error) {
	sess, err := s.sessions.ByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TeacherID != teacherID {
		return nil, session.ErrNotFound
	}
	return s.ledger.ListBySession(ctx, sess.ID)
}
