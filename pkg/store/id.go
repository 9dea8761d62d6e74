package store

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewID returns a random hex string suitable as an identifier.
func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "id-unknown"
	}
	return hex.EncodeToString(b[:])
}

const guestPrefixLen = 8

// GuestUsername derives the deterministic guest account name for a chat
// session. The chat write path and the history read path both resolve guests
// through this function so the truncation rule cannot drift between them.
func GuestUsername(sessionID string) string {
	sid := strings.TrimSpace(sessionID)
	if len(sid) > guestPrefixLen {
		sid = sid[:guestPrefixLen]
	}
	return "guest_" + sid
}

// GuestEmail derives the placeholder email for a guest account.
func GuestEmail(sessionID string) string {
	return GuestUsername(sessionID) + "@guest.thinkora.local"
}
