// Package imagecipher implements the encrypted image container.
//
// A container is IV(16B) || AES-256-CFB(plaintext). There is no header,
// version or length field, and no authentication tag: a wrong key decrypts
// to garbage of the right length. Callers detect failure by decoding the
// plaintext as an image.
package imagecipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// IVSize is the length of the IV prefix in bytes (one AES block).
	IVSize = aes.BlockSize

	// MinContainerLen is the minimum valid container length (IV, empty ciphertext).
	MinContainerLen = IVSize
)

// Encrypt encrypts plaintext under key with a fresh random IV.
// Returns IV(16B) || ciphertext, where len(ciphertext) == len(plaintext).
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("imagecipher: random IV generation failed: %w", err)
	}

	return encryptWithIV(plaintext, key, iv)
}

// encryptWithIV is Encrypt with a caller-supplied IV.
func encryptWithIV(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
	}

	out := make([]byte, IVSize+len(plaintext))
	copy(out, iv)

	//nolint:staticcheck // the container format is fixed to CFB
	stream := cipher.NewCFBEncrypter(block, out[:IVSize])
	stream.XORKeyStream(out[IVSize:], plaintext)

	return out, nil
}

// Decrypt splits container into IV and ciphertext and decrypts under key.
//
// The transform cannot detect a wrong key: it returns plaintext of length
// len(container)-16 for any 32-byte key. It fails only on a short container
// or a key of the wrong size.
func Decrypt(container, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(container) < MinContainerLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedContainer, len(container), MinContainerLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
	}

	iv := container[:IVSize]
	ciphertext := container[IVSize:]

	plaintext := make([]byte, len(ciphertext))
	//nolint:staticcheck // the container format is fixed to CFB
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}
