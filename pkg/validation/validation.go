package validation

import (
	"fmt"
	"regexp"
)

var (
	// RoomCodeRegex validates the shape of a room code. Client-supplied codes
	// go through this before any map lookup or file-path construction.
	RoomCodeRegex = regexp.MustCompile(`^[A-Z0-9]+$`)

	// ClientIDRegex validates client ID format
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomCode validates an already case-normalized room code.
func ValidateRoomCode(code string, length int) error {
	if code == "" {
		return fmt.Errorf("room code is required")
	}
	if len(code) != length {
		return fmt.Errorf("room code must be exactly %d characters", length)
	}
	if !RoomCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid room code format")
	}
	return nil
}

// ValidateClientID validates a client ID
func ValidateClientID(id string) error {
	if id == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("client ID is too long (max 100 characters)")
	}
	if !ClientIDRegex.MatchString(id) {
		return fmt.Errorf("invalid client ID format")
	}
	return nil
}
