package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imgcrypt/internal/imagecipher"
	"imgcrypt/internal/imagecodec"
	"imgcrypt/internal/keyfile"
)

// DecryptRequest contains parameters for decrypting an image.
type DecryptRequest struct {
	// Container is a container file path or the ID of an indexed item.
	Container string `validate:"required"`

	// KeyHex is the 64-character hex key. At most one of KeyHex and KeyFile.
	KeyHex  string `validate:"excluded_with=KeyFile"`
	KeyFile string

	// OutputPath, when set, receives the image encoded by its extension.
	OutputPath string
}

// DecryptResult contains the result of a decrypt operation.
type DecryptResult struct {
	// ID is set when the container belongs to an indexed item.
	ID            string
	ContainerPath string
	Image         imagecodec.Image
	PlainSize     int
	SavedPath     string
}

// Decrypt recovers the image in a container.
//
// The key is validated before the container is read. A container shorter
// than the IV is rejected before decryption. Plaintext that does not decode
// as an image yields ErrDecryptionFailed. No output file is written unless
// decryption and decoding both succeed.
func (v *Vault) Decrypt(req DecryptRequest) (DecryptResult, error) {
	if err := validateRequest(req); err != nil {
		return DecryptResult{}, err
	}

	var outFormat imagecodec.Format
	if req.OutputPath != "" {
		f, err := imagecodec.FormatFromPath(req.OutputPath)
		if err != nil {
			return DecryptResult{}, err
		}
		outFormat = f
	}

	containerPath, item, err := v.resolveContainer(req.Container)
	if err != nil {
		return DecryptResult{}, err
	}

	key, err := v.resolveKey(req, item)
	if err != nil {
		return DecryptResult{}, err
	}
	defer imagecipher.Zero(key)

	container, err := os.ReadFile(containerPath)
	if err != nil {
		return DecryptResult{}, fmt.Errorf("cannot read encrypted file: %w", err)
	}

	plaintext, err := imagecipher.Decrypt(container, key)
	if err != nil {
		if errors.Is(err, imagecipher.ErrMalformedContainer) {
			return DecryptResult{}, fmt.Errorf("encrypted file is too small or corrupted (minimum %d bytes required for IV): %w", imagecipher.MinContainerLen, err)
		}
		return DecryptResult{}, err
	}

	img, err := imagecodec.Decode(plaintext)
	if errors.Is(err, imagecodec.ErrImageTooLarge) {
		return DecryptResult{}, err
	}
	if err != nil {
		v.log.Debug("decrypted bytes are not an image", zap.String("container", containerPath), zap.Error(err))
		return DecryptResult{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	result := DecryptResult{
		ContainerPath: containerPath,
		Image:         img,
		PlainSize:     len(plaintext),
	}
	if item != nil {
		result.ID = item.ID
	}

	if req.OutputPath != "" {
		data := plaintext
		if img.Format != string(outFormat) {
			data, err = imagecodec.Encode(img.Image, outFormat, v.jpegQuality)
			if err != nil {
				return DecryptResult{}, err
			}
		}
		if err := writeOutput(req.OutputPath, data); err != nil {
			return DecryptResult{}, err
		}
		result.SavedPath = req.OutputPath
	}

	v.log.Info("image decrypted",
		zap.String("container", containerPath),
		zap.String("format", img.Format),
		zap.Int("width", img.Width()),
		zap.Int("height", img.Height()),
		zap.String("saved", result.SavedPath),
	)

	return result, nil
}

// resolveContainer maps ref to a container path and, when known, its index entry.
func (v *Vault) resolveContainer(ref string) (string, *Item, error) {
	if info, statErr := os.Stat(ref); statErr == nil {
		if info.IsDir() {
			return "", nil, fmt.Errorf("encrypted file is a directory: %s", ref)
		}
		return ref, v.itemForPath(ref), nil
	} else if _, err := uuid.Parse(ref); err == nil {
		item, err := v.lookup(ref)
		if err != nil {
			return "", nil, err
		}
		return v.layout.ContainerPath(item.ID), &item, nil
	} else {
		return "", nil, fmt.Errorf("cannot open encrypted file: %w", statErr)
	}
}

// itemForPath returns the index entry whose container lives at path, if any.
// Only containers inside the images directory are looked up; an index that
// cannot be opened counts as no entry.
func (v *Vault) itemForPath(path string) *Item {
	id := strings.TrimSuffix(filepath.Base(path), ".bin")
	abs, err := filepath.Abs(path)
	if err != nil || filepath.Clean(abs) != filepath.Clean(v.layout.ContainerPath(id)) {
		return nil
	}

	item, err := v.lookup(id)
	if err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			v.log.Debug("index unavailable, continuing without it", zap.String("container", path), zap.Error(err))
		}
		return nil
	}
	return &item
}

// resolveKey picks the key source in order: hex string, key file, the
// indexed item's key file.
func (v *Vault) resolveKey(req DecryptRequest, item *Item) ([]byte, error) {
	var keyHex string
	switch {
	case req.KeyHex != "":
		keyHex = req.KeyHex
	case req.KeyFile != "":
		s, err := keyfile.Read(req.KeyFile)
		if err != nil {
			return nil, err
		}
		keyHex = s
	case item != nil:
		s, err := keyfile.Read(v.layout.KeyPath(item.ID))
		if err != nil {
			return nil, err
		}
		keyHex = s
	default:
		return nil, ErrKeyRequired
	}

	return imagecipher.ParseKey(keyHex)
}

// writeOutput writes data to path in two phases: a .pending file is written
// and synced, then renamed into place. The pending file is removed on failure.
func writeOutput(path string, data []byte) error {
	pendingPath := path + ".pending"

	if err := os.WriteFile(pendingPath, data, 0600); err != nil {
		os.Remove(pendingPath)
		return fmt.Errorf("failed to write decrypted image: %w", err)
	}

	pendingFile, err := os.OpenFile(pendingPath, os.O_RDONLY, 0)
	if err != nil {
		os.Remove(pendingPath)
		return fmt.Errorf("failed to open decrypted image for sync: %w", err)
	}
	if err := pendingFile.Sync(); err != nil {
		pendingFile.Close()
		os.Remove(pendingPath)
		return fmt.Errorf("failed to sync decrypted image: %w", err)
	}
	pendingFile.Close()

	if err := os.Rename(pendingPath, path); err != nil {
		os.Remove(pendingPath)
		return fmt.Errorf("failed to finalize decrypted image: %w", err)
	}

	return nil
}
