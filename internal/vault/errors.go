package vault

import "errors"

var (
	// ErrDecryptionFailed indicates plaintext that does not decode as an image.
	// The cause cannot be told apart: wrong key or corrupted container.
	ErrDecryptionFailed = errors.New("decryption failed, possibly due to wrong key or corruption")

	// ErrKeyRequired indicates a decrypt request with no key source.
	ErrKeyRequired = errors.New("encryption key is required")

	// ErrItemNotFound indicates an ID with no index entry.
	ErrItemNotFound = errors.New("encrypted image not found")

	// ErrInvalidRequest indicates a request that failed field validation.
	ErrInvalidRequest = errors.New("invalid request")
)
