package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/attendance"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/auth"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/config"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/queue"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/roster"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// In-memory collaborators so the full HTTP surface runs without Postgres.

type fakeSessions struct {
	byID map[string]session.Session
}

func (f *fakeSessions) ResolveByCode(_ context.Context, code string) (session.Session, error) {
	now := time.Now().UTC()
	for _, s := range f.byID {
		if s.Code == code && s.Live(now) {
			return s, nil
		}
	}
	return session.Session{}, session.ErrNotFound
}

func (f *fakeSessions) ByID(_ context.Context, id string) (session.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

type fakeRoster struct {
	students    []*roster.Student
	courses     map[string]*roster.Course
	enrollments map[string]bool
}

func (f *fakeRoster) StudentByMatric(_ context.Context, matric string) (*roster.Student, error) {
	for _, s := range f.students {
		if s.MatricNo == roster.NormalizeMatric(matric) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRoster) UpdateStudentLevel(_ context.Context, studentID string, level int) error {
	for _, s := range f.students {
		if s.ID == studentID {
			lvl := level
			s.Level = &lvl
		}
	}
	return nil
}

func (f *fakeRoster) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	return f.enrollments[courseID+"|"+studentID], nil
}

func (f *fakeRoster) CourseByID(_ context.Context, courseID string) (*roster.Course, error) {
	c, ok := f.courses[courseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRoster) TeacherByEmail(_ context.Context, email, apiKey string) (*roster.Teacher, error) {
	if email == "eze@uni.example" && apiKey == "teacher-key" {
		return &roster.Teacher{ID: "teacher-1", Name: "Dr. Eze", Email: email}, nil
	}
	return nil, nil
}

type fakeLedger struct {
	records       []attendance.Record
	nameByStudent map[string]string
}

func (f *fakeLedger) FindByMatric(_ context.Context, sessionID, matric string) (*attendance.Record, error) {
	for i := range f.records {
		if f.records[i].SessionID == sessionID && f.records[i].MatricNo == matric {
			cp := f.records[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) FindByFingerprint(_ context.Context, sessionID, fp string) (*attendance.DeviceHolder, error) {
	for i := range f.records {
		if f.records[i].SessionID == sessionID && f.records[i].DeviceFingerprint == fp {
			return &attendance.DeviceHolder{
				StudentName: f.nameByStudent[f.records[i].StudentID],
				MatricNo:    f.records[i].MatricNo,
				SubmittedAt: f.records[i].SubmittedAt,
			}, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) Insert(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", len(f.records)+1)
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeLedger) TouchDevice(_ context.Context, _ attendance.DeviceSeen) error { return nil }

func (f *fakeLedger) ListBySession(_ context.Context, sessionID string) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, r := range f.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRegistry struct {
	startErr error
	started  session.Session
}

func (f *fakeRegistry) Start(_ context.Context, courseID, teacherID string, lat, lng, radiusM float64, duration time.Duration) (session.Session, error) {
	if f.startErr != nil {
		return session.Session{}, f.startErr
	}
	return f.started, nil
}

func (f *fakeRegistry) EndEarly(_ context.Context, sessionID, teacherID string) (session.Session, error) {
	return session.Session{}, session.ErrNotFound
}

// apiFixture wires the router over the fakes: course CS103 with one live
// session at (6.5244, 3.3792), radius 100m, expiring in 60 minutes, and two
// enrolled students.
type apiFixture struct {
	router   *gin.Engine
	cfg      config.App
	sessions *fakeSessions
	roster   *fakeRoster
	ledger   *fakeLedger
	registry *fakeRegistry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	now := time.Now().UTC()

	sess := session.Session{
		ID:        "sess-1",
		CourseID:  "course-1",
		TeacherID: "teacher-1",
		Code:      "4821",
		StartAt:   now,
		ExpiresAt: now.Add(60 * time.Minute),
		Lat:       6.5244,
		Lng:       3.3792,
		RadiusM:   100,
		Nonce:     "nonce-1",
		IsActive:  true,
	}

	f := &apiFixture{
		cfg: config.App{
			JWTIssuer:       "unitrack-test",
			JWTSigningKey:   "test-secret",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      time.Hour,
			RateLimitPerMin: 10000,
		},
		sessions: &fakeSessions{byID: map[string]session.Session{sess.ID: sess}},
		roster: &fakeRoster{
			students: []*roster.Student{
				{ID: "stu-1", MatricNo: "CSC/2021/001", Name: "Ada Obi", Email: "ada@uni.example"},
				{ID: "stu-2", MatricNo: "CSC/2021/002", Name: "Bola Ade", Email: "bola@uni.example"},
			},
			courses: map[string]*roster.Course{
				"course-1": {ID: "course-1", Code: "CS103", Title: "Data Structures", TeacherID: "teacher-1", TeacherName: "Dr. Eze"},
			},
			enrollments: map[string]bool{
				"course-1|stu-1": true,
				"course-1|stu-2": true,
			},
		},
		ledger:   &fakeLedger{nameByStudent: map[string]string{"stu-1": "Ada Obi", "stu-2": "Bola Ade"}},
		registry: &fakeRegistry{},
	}

	pipeline := attendance.NewService(f.sessions, f.roster, f.ledger)
	f.router = newRouter(f.cfg, apiDeps{
		pipeline: pipeline,
		sessions: f.registry,
		people:   f.roster,
		queue:    queue.NewInMemory(8),
		health: func(context.Context) (bool, bool) {
			return true, true
		},
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "router-test-agent")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	resp := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return w, resp
}

func submitBody(matric string) map[string]any {
	return map[string]any{
		"matric_no":    matric,
		"session_code": "4821",
		"lat":          6.5244,
		"lng":          3.3792,
		"device_info":  map[string]any{"device_fingerprint": "device-A"},
	}
}

func TestSubmitEndpointAccepted(t *testing.T) {
	f := newAPIFixture(t)

	w, resp := f.do(t, http.MethodPost, "/v1/attendance/submit", "", submitBody("csc/2021/001"))

	require.Equal(t, http.StatusCreated, w.Code, "body: %v", resp)
	assert.Equal(t, "present", resp["status"])
	assert.Equal(t, "Ada Obi", resp["student_name"])
	assert.Equal(t, "CSC/2021/001", resp["matric_no"])
	assert.Equal(t, "CS103", resp["course_code"])
	assert.Equal(t, "Dr. Eze", resp["teacher_name"])
	assert.Equal(t, "4821", resp["session_code"])
	assert.NotEmpty(t, resp["receipt_signature"])
	assert.NotEmpty(t, resp["checks_passed"])
}

func TestSubmitEndpointDuplicate(t *testing.T) {
	f := newAPIFixture(t)

	w, _ := f.do(t, http.MethodPost, "/v1/attendance/submit", "", submitBody("CSC/2021/001"))
	require.Equal(t, http.StatusCreated, w.Code)

	// Second submission from a different spot and device still rejects.
	body := submitBody("CSC/2021/001")
	body["lat"], body["lng"] = 6.5250, 3.3800
	body["device_info"] = map[string]any{"device_fingerprint": "device-B"}
	w, resp := f.do(t, http.MethodPost, "/v1/attendance/submit", "", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "present", resp["previous_status"])
	assert.NotEmpty(t, resp["submitted_at"])
	assert.Len(t, f.ledger.records, 1)
}

func TestSubmitEndpointSharedDevice(t *testing.T) {
	f := newAPIFixture(t)

	w, _ := f.do(t, http.MethodPost, "/v1/attendance/submit", "", submitBody("CSC/2021/001"))
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := f.do(t, http.MethodPost, "/v1/attendance/submit", "", submitBody("CSC/2021/002"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Ada Obi", resp["used_by_name"])
	assert.Equal(t, "CSC/2021/001", resp["used_by"])
	assert.Len(t, f.ledger.records, 1)
}

func TestSubmitEndpointOutOfRange(t *testing.T) {
	f := newAPIFixture(t)

	body := submitBody("CSC/2021/001")
	body["lat"] = 6.5289 // ~500m north of the session anchor
	w, resp := f.do(t, http.MethodPost, "/v1/attendance/submit", "", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.InDelta(t, 500, resp["actual_distance"], 10)
	assert.Equal(t, float64(100), resp["required_radius"])
	assert.Empty(t, f.ledger.records, "an out-of-range attempt must leave no ledger trace")
}

func TestSubmitEndpointStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *apiFixture, body map[string]any)
		wantStatus int
		wantKeys   []string
	}{
		{
			name:       "unknown session code",
			mutate:     func(_ *apiFixture, body map[string]any) { body["session_code"] = "0000" },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown matric",
			mutate:     func(_ *apiFixture, body map[string]any) { body["matric_no"] = "CSC/1999/404" },
			wantStatus: http.StatusNotFound,
		},
		{
			name: "not enrolled",
			mutate: func(f *apiFixture, _ map[string]any) {
				delete(f.roster.enrollments, "course-1|stu-1")
			},
			wantStatus: http.StatusForbidden,
			wantKeys:   []string{"course_code", "teacher_name"},
		},
		{
			name: "expired at late re-check",
			mutate: func(f *apiFixture, _ map[string]any) {
				// Code resolution still sees the live snapshot; the re-read
				// by id gets an already-ended session.
				live := f.sessions.byID["sess-1"]
				ended := live
				ended.IsActive = false
				ended.ExpiresAt = time.Now().UTC().Add(-time.Minute)
				f.sessions.byID["sess-1"] = ended
				f.sessions.byID["sess-live"] = live
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid body",
			mutate:     func(_ *apiFixture, body map[string]any) { body["session_code"] = "48" },
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAPIFixture(t)
			body := submitBody("CSC/2021/001")
			tc.mutate(f, body)

			w, resp := f.do(t, http.MethodPost, "/v1/attendance/submit", "", body)
			require.Equal(t, tc.wantStatus, w.Code, "body: %v", resp)
			assert.NotEmpty(t, resp["error"])
			for _, key := range tc.wantKeys {
				assert.Contains(t, resp, key)
			}
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w, resp := f.do(t, http.MethodPost, "/v1/teachers/login", "",
		map[string]any{"email": "eze@uni.example", "api_key": "teacher-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEmpty(t, resp["refresh_token"])

	w, _ = f.do(t, http.MethodPost, "/v1/teachers/login", "",
		map[string]any{"email": "eze@uni.example", "api_key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionStartConflict(t *testing.T) {
	f := newAPIFixture(t)
	expiresAt := time.Now().UTC().Add(30 * time.Minute)
	f.registry.startErr = &session.ConflictError{ExistingCode: "4821", ExpiresAt: expiresAt}

	pair, err := auth.Issue("teacher-1", "Dr. Eze", f.cfg.JWTIssuer, f.cfg.JWTSigningKey, f.cfg.AccessTTL, f.cfg.RefreshTTL)
	require.NoError(t, err)

	w, resp := f.do(t, http.MethodPost, "/v1/sessions", pair.AccessToken, map[string]any{
		"course_id":        "course-1",
		"lat":              6.5244,
		"lng":              3.3792,
		"radius_m":         100,
		"duration_minutes": 60,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "4821", resp["existing_code"])
	assert.NotEmpty(t, resp["expires_at"])
}

func TestAuthRequiredOnSessionRoutes(t *testing.T) {
	f := newAPIFixture(t)

	w, _ := f.do(t, http.MethodPost, "/v1/sessions", "", map[string]any{"course_id": "course-1"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthzReflectsProbes(t *testing.T) {
	f := newAPIFixture(t)

	healthy := true
	router := newRouter(f.cfg, apiDeps{
		pipeline: attendance.NewService(f.sessions, f.roster, f.ledger),
		sessions: f.registry,
		people:   f.roster,
		queue:    queue.NewInMemory(1),
		health: func(context.Context) (bool, bool) {
			return true, healthy
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
