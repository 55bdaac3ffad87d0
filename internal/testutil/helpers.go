package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTestEnv points IMGCRYPT_HOME at a fresh temporary directory and
// isolates HOME so nothing touches the real user data directory.
// Returns the data directory. Environment is restored when the test ends.
func SetupTestEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")

	t.Setenv("HOME", tmp)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("IMGCRYPT_HOME", dataDir)
	t.Setenv("IMGCRYPT_ENV_FILE", filepath.Join(tmp, "absent.env"))

	return dataDir
}

// TestImage returns a w×h RGBA image with a deterministic gradient.
func TestImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 96, A: 255})
		}
	}
	return img
}

// PNGBytes returns a PNG encoding of TestImage(w, h).
func PNGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, TestImage(w, h)))
	return buf.Bytes()
}

// JPEGBytes returns a JPEG encoding of TestImage(w, h).
func JPEGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, TestImage(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring a w×h RGBA
// image, with no pixel data. Enough for image.DecodeConfig.
func PNGHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(ihdr)))
	buf.Write(length[:])
	crc := crc32.NewIEEE()
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	crc.Write(chunk)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
	return buf.Bytes()
}

// WriteFile writes data under dir and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// UUIDRegex is a compiled regex for validating UUID format.
var UUIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsUUID validates that a string is a valid UUID.
func IsUUID(s string) bool {
	return UUIDRegex.MatchString(s)
}

// KeyHexRegex matches a canonical key string.
var KeyHexRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
