package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	imagesDirName = "encrypted_images"
	keysDirName   = "keys"
	indexFileName = "index.db"
)

// Layout is the on-disk arrangement under a base directory.
type Layout struct {
	BaseDir   string
	ImagesDir string
	KeysDir   string
	IndexPath string
}

// NewLayout derives the layout for baseDir.
func NewLayout(baseDir string) Layout {
	return Layout{
		BaseDir:   baseDir,
		ImagesDir: filepath.Join(baseDir, imagesDirName),
		KeysDir:   filepath.Join(baseDir, keysDirName),
		IndexPath: filepath.Join(baseDir, indexFileName),
	}
}

// ContainerPath returns the container path for id.
func (l Layout) ContainerPath(id string) string {
	return filepath.Join(l.ImagesDir, ContainerName(id))
}

// KeyPath returns the key file path for id.
func (l Layout) KeyPath(id string) string {
	return filepath.Join(l.KeysDir, KeyFileName(id))
}

// DefaultBaseDir returns the OS-appropriate base directory for imgcrypt data.
func DefaultBaseDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %w", err)
		}
		baseDir = filepath.Join(home, "Library", "Application Support", "imgcrypt")

	case "windows":
		appData := os.Getenv("AppData")
		if appData == "" {
			return "", errors.New("AppData environment variable not set")
		}
		baseDir = filepath.Join(appData, "imgcrypt")

	default: // Linux and other Unix-like systems
		xdgDataHome := os.Getenv("XDG_DATA_HOME")
		if xdgDataHome != "" {
			baseDir = filepath.Join(xdgDataHome, "imgcrypt")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot get home directory: %w", err)
			}
			baseDir = filepath.Join(home, ".local", "share", "imgcrypt")
		}
	}

	return baseDir, nil
}

// ResolveBaseDir returns home when set, otherwise DefaultBaseDir.
func ResolveBaseDir(home string) (string, error) {
	if home != "" {
		return filepath.Abs(home)
	}
	return DefaultBaseDir()
}

// EnsureDirectories creates the base, images and keys directories.
// Safe to call repeatedly.
func EnsureDirectories(l Layout) error {
	for _, dir := range []string{l.BaseDir, l.ImagesDir, l.KeysDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// writeFileAtomic writes data to path via a temporary file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}

	return nil
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
