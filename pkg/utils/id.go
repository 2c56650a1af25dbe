package utils

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateClientID generates an opaque client identifier, unique for the
// process lifetime.
func GenerateClientID() string {
	return uuid.NewString()
}

// GenerateRoomCode generates a short shareable room code of length n drawn
// from upper-case letters and digits.
func GenerateRoomCode(n int) string {
	b := make([]byte, n)
	rand.Read(b)

	var sb strings.Builder
	sb.Grow(n)
	for _, c := range b {
		sb.WriteByte(roomCodeAlphabet[int(c)%len(roomCodeAlphabet)])
	}
	return sb.String()
}

// ShortID truncates an identifier for use in file names and logs.
func ShortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
