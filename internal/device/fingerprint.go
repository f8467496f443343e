package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Info carries the recognized client-supplied device signals. Fingerprint,
// when present, is authoritative; the rest feeds the server-side fallback.
type Info struct {
	Platform         string `json:"platform,omitempty"`
	Browser          string `json:"browser,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	Language         string `json:"language,omitempty"`
	Fingerprint      string `json:"device_fingerprint,omitempty"`
	OS               string `json:"os,omitempty"`
	DeviceType       string `json:"device_type,omitempty"`
}

// Derive returns the duplication key for a submission. A non-empty client
// fingerprint wins; otherwise the key is a SHA-256 over a stable JSON
// serialization of the request metadata. The result is an equality key only,
// never an identity credential.
func Derive(info Info, userAgent, clientIP string) string {
	if fp := strings.TrimSpace(info.Fingerprint); fp != "" {
		return fp
	}
	return fallbackHash(info, userAgent, clientIP)
}

func fallbackHash(info Info, userAgent, clientIP string) string {
	// encoding/json marshals struct fields in declaration order, which keeps
	// the serialization stable across runs.
	payload := struct {
		UserAgent string `json:"user_agent"`
		IP        string `json:"ip"`
		Device    Info   `json:"device"`
	}{
		UserAgent: userAgent,
		IP:        clientIP,
		Device:    info,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
