package imagecipher

import "errors"

var (
	// ErrInvalidKeySize indicates a key that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.New("imagecipher: key must be 32 bytes")

	// ErrMalformedKey indicates a key string that is not 64 hexadecimal characters.
	ErrMalformedKey = errors.New("imagecipher: malformed key")

	// ErrMalformedContainer indicates a container shorter than the IV.
	// Minimum length: 16 bytes (IV with empty ciphertext).
	ErrMalformedContainer = errors.New("imagecipher: malformed container")
)
