package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Fingerprint computes the linking fingerprint: hex(sha256(sessionID + cookieValue)).
// The browser presents this value as the linkFingerprint callback parameter; a
// mismatch means the callback did not originate from the session that started
// the linking flow.
func Fingerprint(sessionID, cookieValue string) string {
	sum := sha256.Sum256([]byte(sessionID + cookieValue))
	return hex.EncodeToString(sum[:])
}

// FingerprintMatches compares a presented fingerprint against the expected
// one in constant time.
func FingerprintMatches(presented, sessionID, cookieValue string) bool {
	if presented == "" || cookieValue == "" {
		return false
	}
	expected := Fingerprint(sessionID, cookieValue)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
