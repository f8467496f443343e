package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("teacher-1", "Dr. Eze", "unitrack-test", "secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}

	claims, err := Parse(pair.AccessToken, "secret", "unitrack-test")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.TeacherID != "teacher-1" {
		t.Errorf("TeacherID = %q, want teacher-1", claims.TeacherID)
	}
	if claims.Name != "Dr. Eze" {
		t.Errorf("Name = %q, want Dr. Eze", claims.Name)
	}
}

func TestParseRejections(t *testing.T) {
	pair, err := Issue("teacher-1", "Dr. Eze", "unitrack-test", "secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "wrong key", token: pair.AccessToken, key: "other", issuer: "unitrack-test"},
		{name: "wrong issuer", token: pair.AccessToken, key: "secret", issuer: "someone-else"},
		{name: "garbage token", token: "not.a.jwt", key: "secret", issuer: "unitrack-test"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.token, tc.key, tc.issuer); err == nil {
				t.Error("expected parse to fail")
			}
		})
	}
}

func TestParseExpired(t *testing.T) {
	pair, err := Issue("teacher-1", "Dr. Eze", "unitrack-test", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "unitrack-test"); err == nil {
		t.Error("expected expired token to fail")
	}
}
