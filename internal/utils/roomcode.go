package utils

import (
	"crypto/rand"
	"strings"
)

// Room codes are short human-shareable tokens used in the call URL.
// The alphabet omits lookalike characters (0/O, 1/I/L) so codes survive
// being read out loud over the phone.
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const roomCodeLength = 10

// NewRoomCode generates a random room code like "Q7RV-M2KXWP" (grouped for
// readability, stored without the dash).
func NewRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	var b strings.Builder
	b.Grow(roomCodeLength)
	for _, c := range buf {
		b.WriteByte(roomCodeAlphabet[int(c)%len(roomCodeAlphabet)])
	}
	return b.String()
}

// NormalizeRoomCode uppercases and strips separators users tend to add when
// typing a code from a shared link.
func NormalizeRoomCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
