package main

import (
	"strings"
	"testing"
)

func TestDecodeSubmitRequest(t *testing.T) {
	valid := `{
		"matric_no": "csc/2021/001",
		"session_code": "4821",
		"lat": 6.5244,
		"lng": 3.3792,
		"accuracy": 12.5,
		"level": 200,
		"device_info": {"platform": "iOS", "browser": "Safari", "device_fingerprint": "abc"}
	}`

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: valid},
		{name: "minimal", body: `{"matric_no":"A","session_code":"0001","lat":0,"lng":0}`},
		{name: "missing matric", body: `{"session_code":"4821","lat":1,"lng":1}`, wantErr: "matric_no"},
		{name: "code too short", body: `{"matric_no":"A","session_code":"482","lat":1,"lng":1}`, wantErr: "session_code"},
		{name: "code non-digit", body: `{"matric_no":"A","session_code":"48a1","lat":1,"lng":1}`, wantErr: "session_code"},
		{name: "missing lat", body: `{"matric_no":"A","session_code":"4821","lng":1}`, wantErr: "lat"},
		{name: "lat out of range", body: `{"matric_no":"A","session_code":"4821","lat":90.1,"lng":1}`, wantErr: "lat"},
		{name: "lng out of range", body: `{"matric_no":"A","session_code":"4821","lat":1,"lng":-180.5}`, wantErr: "lng"},
		{name: "accuracy negative", body: `{"matric_no":"A","session_code":"4821","lat":1,"lng":1,"accuracy":-1}`, wantErr: "accuracy"},
		{name: "accuracy too large", body: `{"matric_no":"A","session_code":"4821","lat":1,"lng":1,"accuracy":10001}`, wantErr: "accuracy"},
		{name: "bad level", body: `{"matric_no":"A","session_code":"4821","lat":1,"lng":1,"level":150}`, wantErr: "level"},
		{
			name:    "unknown device_info field",
			body:    `{"matric_no":"A","session_code":"4821","lat":1,"lng":1,"device_info":{"platform":"iOS","battery":0.5}}`,
			wantErr: "invalid request body",
		},
		{
			name:    "unknown top-level field",
			body:    `{"matric_no":"A","session_code":"4821","lat":1,"lng":1,"extra":true}`,
			wantErr: "invalid request body",
		},
		{name: "not json", body: `lol`, wantErr: "invalid request body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := decodeSubmitRequest(strings.NewReader(tc.body))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req == nil {
					t.Fatal("expected a decoded request")
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestToSubmission(t *testing.T) {
	req, err := decodeSubmitRequest(strings.NewReader(
		`{"matric_no":"csc/2021/001","session_code":"4821","lat":6.5,"lng":3.3,"device_info":{"device_fingerprint":"fp-1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	sub := req.toSubmission("agent-x", "10.1.2.3")
	if sub.Lat != 6.5 || sub.Lng != 3.3 {
		t.Errorf("coordinates not carried over: %+v", sub)
	}
	if sub.UserAgent != "agent-x" || sub.ClientIP != "10.1.2.3" {
		t.Errorf("request metadata not carried over: %+v", sub)
	}
	if sub.Device.Fingerprint != "fp-1" {
		t.Errorf("device info not carried over: %+v", sub.Device)
	}
}
