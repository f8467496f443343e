package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign produces the submission receipt: a SHA-256 over the session id, the
// normalized matric number, the submission instant in unix millis, and the
// session nonce, joined by '|'. The nonce binds the receipt to one session so
// it cannot be replayed against another; no asymmetric keys are involved.
func Sign(sessionID, matricNo string, timestampMillis int64, nonce string) string {
	payload := fmt.Sprintf("%s|%s|%d|%s", sessionID, matricNo, timestampMillis, nonce)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
