package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"imgcrypt/internal/keyfile"
	"imgcrypt/internal/testutil"
)

// newTestVault opens a vault in a temporary directory, closed at test end.
func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(Options{
		BaseDir: filepath.Join(t.TempDir(), "vault"),
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

// keyHexOf reads the key written for res.
func keyHexOf(t *testing.T, res EncryptResult) string {
	t.Helper()
	keyHex, err := keyfile.Read(res.KeyPath)
	require.NoError(t, err)
	return keyHex
}

// indexedItem reads the index entry for id, opening the index only for the call.
func indexedItem(v *Vault, id string) (Item, error) {
	return v.lookup(id)
}

// encryptTestImage encrypts a small PNG from a file and returns the result.
func encryptTestImage(t *testing.T, v *Vault) EncryptResult {
	t.Helper()
	path := testutil.WriteFile(t, t.TempDir(), "frame.png", testutil.PNGBytes(t, 32, 24))
	res, err := v.Encrypt(EncryptRequest{InputPath: path})
	require.NoError(t, err)
	return res
}
