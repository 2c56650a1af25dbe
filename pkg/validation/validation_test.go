package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "ABC123", false},
		{"all letters", "ABCDEF", false},
		{"all digits", "123456", false},
		{"empty", "", true},
		{"too short", "ABC12", true},
		{"too long", "ABC1234", true},
		{"lowercase", "abc123", true},
		{"path traversal", "../../", true},
		{"whitespace", "ABC 12", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomCode(tt.code, 6)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	assert.NoError(t, ValidateClientID("550e8400-e29b-41d4-a716-446655440000"))
	assert.NoError(t, ValidateClientID("client_1"))
	assert.Error(t, ValidateClientID(""))
	assert.Error(t, ValidateClientID("has spaces"))
	assert.Error(t, ValidateClientID("semi;colon"))

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateClientID(string(long)))
}
