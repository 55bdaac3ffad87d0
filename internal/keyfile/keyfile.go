// Package keyfile reads and writes the plaintext key files stored next to
// encrypted images.
//
// A key file is text with one line of the form
//
//	Encryption Key: <64 hex characters>
//
// Any other lines are informational and ignored by Parse.
package keyfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// KeyLinePrefix marks the line holding the key.
const KeyLinePrefix = "Encryption Key:"

// ErrKeyNotFound indicates a key file without an "Encryption Key:" line.
var ErrKeyNotFound = errors.New("keyfile: could not find encryption key in file")

// Entry is the content written to a key file.
type Entry struct {
	KeyHex        string
	ContainerName string
	CreatedAt     time.Time
}

// Format renders e in key file form.
func Format(e Entry) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", KeyLinePrefix, e.KeyHex)
	if e.ContainerName != "" {
		fmt.Fprintf(&buf, "Encrypted Image: %s\n", e.ContainerName)
	}
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(&buf, "Created: %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	}
	return buf.Bytes()
}

// Write stores e at path atomically with owner-only permissions.
func Write(path string, e Entry) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, Format(e), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize key file: %w", err)
	}

	return nil
}

// Parse returns the key string from the first "Encryption Key:" line,
// trimmed of surrounding whitespace. The value is not validated.
func Parse(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if !strings.HasPrefix(line, KeyLinePrefix) {
			continue
		}
		_, value, _ := strings.Cut(line, ":")
		return strings.TrimSpace(value), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	return "", ErrKeyNotFound
}

// Read opens path and parses the key from it.
func Read(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to load key file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
