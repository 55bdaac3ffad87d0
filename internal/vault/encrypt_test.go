package vault

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgcrypt/internal/imagecipher"
	"imgcrypt/internal/imagecodec"
	"imgcrypt/internal/keyfile"
	"imgcrypt/internal/testutil"
)

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	data := []byte("image bytes")
	path := testutil.WriteFile(t, dir, "in.png", data)
	empty := testutil.WriteFile(t, dir, "empty.png", nil)
	big := testutil.WriteFile(t, dir, "big.png", bytes.Repeat([]byte{1}, 101))

	got, src, err := ReadInput(path, nil, 100)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, InputSourceFile, src)

	got, src, err = ReadInput("", strings.NewReader("piped"), 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("piped"), got)
	assert.Equal(t, InputSourceStdin, src)

	tests := []struct {
		name    string
		path    string
		stdin   *strings.Reader
		wantMsg string
	}{
		{"both sources", path, strings.NewReader("x"), "both file and stdin"},
		{"no source", "", nil, "no input provided"},
		{"empty file", empty, nil, "input is empty"},
		{"empty stdin", "", strings.NewReader(""), "input is empty"},
		{"file too large", big, nil, "exceeds maximum size"},
		{"stdin too large", "", strings.NewReader(strings.Repeat("x", 101)), "exceeds maximum size"},
		{"missing file", filepath.Join(dir, "missing.png"), nil, "cannot open file"},
		{"directory", dir, nil, "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.stdin != nil {
				_, _, err = ReadInput(tt.path, tt.stdin, 100)
			} else {
				_, _, err = ReadInput(tt.path, nil, 100)
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestEncrypt_WritesContainerKeyAndIndex(t *testing.T) {
	v := newTestVault(t)
	res := encryptTestImage(t, v)

	assert.True(t, testutil.IsUUID(res.ID), "id %q", res.ID)
	assert.Equal(t, v.Layout().ContainerPath(res.ID), res.ContainerPath)
	assert.Equal(t, v.Layout().KeyPath(res.ID), res.KeyPath)

	container, err := os.ReadFile(res.ContainerPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(container)), res.Item.PlainSize+imagecipher.IVSize)

	keyHex, err := keyfile.Read(res.KeyPath)
	require.NoError(t, err)
	assert.Regexp(t, testutil.KeyHexRegex, keyHex)

	key, err := imagecipher.ParseKey(keyHex)
	require.NoError(t, err)
	plaintext, err := imagecipher.Decrypt(container, key)
	require.NoError(t, err)
	img, err := imagecodec.Decode(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 32, img.Width())
	assert.Equal(t, 24, img.Height())

	item, err := indexedItem(v, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Item.ID, item.ID)
	assert.Equal(t, "file", item.InputType)
	assert.Equal(t, Algorithm, item.Algorithm)
	assert.Equal(t, "png", item.Format)
	assert.Equal(t, 32, item.Width)
	assert.Equal(t, 24, item.Height)
	assert.True(t, filepath.IsAbs(item.OriginalPath))

	for _, p := range []string{res.ContainerPath, res.KeyPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), p)
		_, err = os.Stat(p + ".tmp")
		assert.True(t, os.IsNotExist(err), "temporary file left for %s", p)
	}

	// Key material never reaches the index.
	raw, err := os.ReadFile(v.Layout().IndexPath)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte(keyHex)))
}

func TestEncrypt_PNGInputKeptByteForByte(t *testing.T) {
	v := newTestVault(t)
	input := testutil.PNGBytes(t, 16, 16)

	res, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(input)})
	require.NoError(t, err)
	assert.Equal(t, "stdin", res.Item.InputType)
	assert.Empty(t, res.Item.OriginalPath)

	container, err := os.ReadFile(res.ContainerPath)
	require.NoError(t, err)
	key, err := imagecipher.ParseKey(keyHexOf(t, res))
	require.NoError(t, err)
	plaintext, err := imagecipher.Decrypt(container, key)
	require.NoError(t, err)
	assert.Equal(t, input, plaintext)
}

func TestEncrypt_ReencodesToCaptureFormat(t *testing.T) {
	v := newTestVault(t)

	res, err := v.Encrypt(EncryptRequest{
		Input:   bytes.NewReader(testutil.PNGBytes(t, 20, 10)),
		Format:  "jpeg",
		Quality: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", res.Item.Format)

	out, err := v.Decrypt(DecryptRequest{Container: res.ContainerPath, KeyHex: keyHexOf(t, res)})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", out.Image.Format)
	assert.Equal(t, 20, out.Image.Width())
}

func TestEncrypt_DefaultCaptureFormatFromOptions(t *testing.T) {
	v, err := New(Options{BaseDir: t.TempDir(), CaptureFormat: imagecodec.FormatBMP})
	require.NoError(t, err)
	defer v.Close()

	res, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(testutil.JPEGBytes(t, 8, 8))})
	require.NoError(t, err)
	assert.Equal(t, "bmp", res.Item.Format)
}

func TestEncrypt_RejectsNonImage(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Encrypt(EncryptRequest{Input: strings.NewReader("not an image")})
	require.Error(t, err)
	assert.ErrorIs(t, err, imagecodec.ErrNotImage)

	assertNoFiles(t, v)
}

func TestEncrypt_InvalidRequest(t *testing.T) {
	v := newTestVault(t)
	input := testutil.PNGBytes(t, 4, 4)

	tests := []struct {
		name    string
		req     EncryptRequest
		wantMsg string
	}{
		{"unknown format", EncryptRequest{Input: bytes.NewReader(input), Format: "heic"}, "Format must be one of"},
		{"quality too high", EncryptRequest{Input: bytes.NewReader(input), Quality: 101}, "Quality out of range"},
		{"shred with stdin", EncryptRequest{Input: bytes.NewReader(input), Shred: true}, "shred can only be used with file input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Encrypt(tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	assertNoFiles(t, v)
}

func TestEncrypt_KeyWriteFailureLeavesNothing(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, os.RemoveAll(v.Layout().KeysDir))
	// A file where the keys directory should be makes every key write fail.
	require.NoError(t, os.WriteFile(v.Layout().KeysDir, nil, 0600))

	_, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(testutil.PNGBytes(t, 4, 4))})
	require.Error(t, err)

	entries, err := os.ReadDir(v.Layout().ImagesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(v.Layout().IndexPath)
	assert.True(t, os.IsNotExist(err), "index should not be created")
}

func TestEncrypt_EachCallUsesNewKeyAndID(t *testing.T) {
	v := newTestVault(t)
	input := testutil.PNGBytes(t, 8, 8)

	a, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(input)})
	require.NoError(t, err)
	b, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(input)})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, keyHexOf(t, a), keyHexOf(t, b))

	ca, err := os.ReadFile(a.ContainerPath)
	require.NoError(t, err)
	cb, err := os.ReadFile(b.ContainerPath)
	require.NoError(t, err)
	assert.NotEqual(t, ca, cb)
}

func TestEncrypt_Shred(t *testing.T) {
	v := newTestVault(t)
	path := testutil.WriteFile(t, t.TempDir(), "frame.png", testutil.PNGBytes(t, 8, 8))

	res, err := v.Encrypt(EncryptRequest{InputPath: path, Shred: true})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "source should be removed")
}

func TestShredFile_MissingFile(t *testing.T) {
	problems := ShredFile(filepath.Join(t.TempDir(), "missing"))
	require.Len(t, problems, 1)
	assert.True(t, strings.HasPrefix(problems[0], "failed to open file for shredding"), problems[0])
}

func TestShredFile_LargerThanChunk(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "big.raw", bytes.Repeat([]byte{0xAB}, 3*shredChunk+17))

	assert.Empty(t, ShredFile(path))
	assertNotExist(t, path)
}

func TestZeroReader(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 2*shredChunk)

	n, err := zeroReader{}.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, shredChunk, n)
	assert.Equal(t, make([]byte, shredChunk), buf[:n])
	assert.Equal(t, byte(0xFF), buf[n])
}

func TestEncrypt_RejectsOversizedImage(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Encrypt(EncryptRequest{Input: bytes.NewReader(testutil.PNGHeader(50000, 50000))})
	require.Error(t, err)
	assert.ErrorIs(t, err, imagecodec.ErrImageTooLarge)

	assertNoFiles(t, v)
}

func TestEncrypt_ResultCarriesNoKeyMaterial(t *testing.T) {
	v := newTestVault(t)
	res := encryptTestImage(t, v)
	keyHex := keyHexOf(t, res)

	dump := fmt.Sprintf("%+v", res)
	assert.NotContains(t, dump, keyHex)
}

func TestEncrypt_ConcurrentVaultsOnSameBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "shared")
	input := testutil.PNGBytes(t, 8, 8)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := New(Options{BaseDir: base})
			if err != nil {
				errs[i] = err
				return
			}
			defer v.Close()
			_, errs[i] = v.Encrypt(EncryptRequest{Input: bytes.NewReader(input)})
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "worker %d", i)
	}

	v, err := New(Options{BaseDir: base})
	require.NoError(t, err)
	defer v.Close()
	result, err := v.Status()
	require.NoError(t, err)
	require.Len(t, result.Entries, workers)
	assert.False(t, result.ValidationFailed)
}

func assertNoFiles(t *testing.T, v *Vault) {
	t.Helper()
	for _, dir := range []string{v.Layout().ImagesDir, v.Layout().KeysDir} {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("read %s: %v", dir, err)
		}
		assert.Empty(t, entries, dir)
	}
}
