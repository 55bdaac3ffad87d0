package imagecipher

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// KeyHexLen is the length of a key in its hex text form.
const KeyHexLen = KeySize * 2

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("imagecipher: key generation failed: %w", err)
	}
	return key, nil
}

// ParseKey decodes a 64-character hex key string.
// Surrounding whitespace is ignored and upper case digits are accepted.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrMalformedKey)
	}
	if len(s) != KeyHexLen {
		return nil, fmt.Errorf("%w: must be exactly %d hexadecimal characters, got %d", ErrMalformedKey, KeyHexLen, len(s))
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return nil, fmt.Errorf("%w: must contain only hexadecimal characters (0-9, a-f)", ErrMalformedKey)
		}
	}

	key, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return key, nil
}

// FormatKey returns the canonical lowercase hex form of key.
func FormatKey(key []byte) string {
	return hex.EncodeToString(key)
}

// Zero overwrites key material in place. It is best-effort: copies such as
// the string returned by FormatKey are not reached.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
