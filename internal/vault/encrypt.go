package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imgcrypt/internal/imagecipher"
	"imgcrypt/internal/imagecodec"
	"imgcrypt/internal/keyfile"
)

// ReadInput reads input from either a file path or the given stdin reader.
// Exactly one source must be provided. Enforces the size limit.
func ReadInput(path string, stdin io.Reader, limit int64) ([]byte, InputSource, error) {
	// Case: both file path and stdin
	if path != "" && stdin != nil {
		return nil, 0, errors.New("cannot read from both file and stdin")
	}

	// Case: neither file path nor stdin
	if path == "" && stdin == nil {
		return nil, 0, errors.New("no input provided (use file path or pipe to stdin)")
	}

	var data []byte
	var source InputSource

	if path != "" {
		source = InputSourceFile
		file, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("cannot open file: %w", err)
		}
		defer file.Close()

		fileInfo, err := file.Stat()
		if err != nil {
			return nil, 0, fmt.Errorf("cannot stat file: %w", err)
		}

		if fileInfo.IsDir() {
			return nil, 0, fmt.Errorf("input is a directory: %s", path)
		}

		if fileInfo.Size() > limit {
			return nil, 0, fmt.Errorf("input exceeds maximum size of %d bytes", limit)
		}

		data, err = io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			return nil, 0, fmt.Errorf("cannot read file: %w", err)
		}
	} else {
		source = InputSourceStdin
		var err error
		data, err = io.ReadAll(io.LimitReader(stdin, limit+1))
		if err != nil {
			return nil, 0, fmt.Errorf("cannot read stdin: %w", err)
		}
	}

	if len(data) == 0 {
		return nil, 0, errors.New("input is empty")
	}

	if int64(len(data)) > limit {
		return nil, 0, fmt.Errorf("input exceeds maximum size of %d bytes", limit)
	}

	return data, source, nil
}

// ShredNotice describes the limits of ShredFile for display before shredding.
const ShredNotice = "file shredding on modern filesystems is best-effort only. backups, snapshots, wear leveling, and caches may retain data."

const shredChunk = 64 * 1024

// ShredFile overwrites path with zeroes, syncs it and removes it.
// It never fails: each step that goes wrong adds a message to the returned
// slice. Steps after a failed open, stat or overwrite are skipped.
func ShredFile(path string) []string {
	var problems []string
	note := func(step string, err error) {
		problems = append(problems, fmt.Sprintf("failed to %s: %v", step, err))
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		note("open file for shredding", err)
		return problems
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		note("stat file for shredding", err)
		return problems
	}

	if _, err := io.CopyN(file, zeroReader{}, info.Size()); err != nil {
		file.Close()
		note("overwrite file during shredding", err)
		return problems
	}
	if err := file.Sync(); err != nil {
		note("sync file during shredding", err)
	}
	file.Close()

	if err := os.Remove(path); err != nil {
		note("remove file after shredding", err)
	}
	return problems
}

// zeroReader yields zero bytes in chunks of at most shredChunk.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	if len(p) > shredChunk {
		p = p[:shredChunk]
	}
	clear(p)
	return len(p), nil
}

// EncryptRequest contains parameters for encrypting an image.
type EncryptRequest struct {
	// InputPath is the image file. Empty means read from Input.
	InputPath string
	Input     io.Reader `validate:"-"`

	// Format overrides the capture encoding; empty uses the vault default.
	Format  string `validate:"omitempty,oneof=png jpeg jpg gif bmp tiff tif"`
	Quality int    `validate:"omitempty,min=1,max=100"`

	// Shred removes the source file after a successful encryption (file input only).
	Shred bool
}

// EncryptResult contains the result of an encrypt operation.
type EncryptResult struct {
	ID            string
	ContainerPath string
	KeyPath       string
	Item          Item
	Warnings      []string
}

// Encrypt encodes the input image, encrypts it under a fresh key and writes
// the container and key file. Nothing is left on disk if any step fails.
func (v *Vault) Encrypt(req EncryptRequest) (EncryptResult, error) {
	if err := validateRequest(req); err != nil {
		return EncryptResult{}, err
	}
	if req.Shred && req.InputPath == "" {
		return EncryptResult{}, errors.New("shred can only be used with file input")
	}

	format := v.captureFormat
	if req.Format != "" {
		f, err := imagecodec.ParseFormat(req.Format)
		if err != nil {
			return EncryptResult{}, err
		}
		format = f
	}
	quality := v.jpegQuality
	if req.Quality != 0 {
		quality = req.Quality
	}

	input, source, err := ReadInput(req.InputPath, req.Input, v.maxInputBytes)
	if err != nil {
		return EncryptResult{}, err
	}

	plaintext, img, err := encodeCapture(input, format, quality)
	if err != nil {
		return EncryptResult{}, err
	}

	key, err := imagecipher.GenerateKey()
	if err != nil {
		return EncryptResult{}, fmt.Errorf("encryption failed: %w", err)
	}
	defer imagecipher.Zero(key)

	container, err := imagecipher.Encrypt(plaintext, key)
	if err != nil {
		return EncryptResult{}, fmt.Errorf("encryption failed: %w", err)
	}

	id := uuid.New().String()
	createdAt := v.now().UTC()
	containerPath := v.layout.ContainerPath(id)
	keyPath := v.layout.KeyPath(id)

	if err := writeFileAtomic(containerPath, container); err != nil {
		return EncryptResult{}, fmt.Errorf("cannot write encrypted image: %w", err)
	}

	err = keyfile.Write(keyPath, keyfile.Entry{
		KeyHex:        imagecipher.FormatKey(key),
		ContainerName: ContainerName(id),
		CreatedAt:     createdAt,
	})
	if err != nil {
		removeIfExists(containerPath)
		return EncryptResult{}, err
	}

	originalPath := ""
	if req.InputPath != "" {
		if abs, err := filepath.Abs(req.InputPath); err == nil {
			originalPath = abs
		} else {
			originalPath = req.InputPath
		}
	}

	item := Item{
		ID:            id,
		CreatedAt:     createdAt,
		InputType:     source.String(),
		OriginalPath:  originalPath,
		Format:        string(format),
		Width:         img.Width(),
		Height:        img.Height(),
		PlainSize:     int64(len(plaintext)),
		Algorithm:     Algorithm,
		ContainerFile: ContainerName(id),
		KeyFile:       KeyFileName(id),
	}
	if err := v.withIndex(func(x *Index) error { return x.Put(item) }); err != nil {
		removeIfExists(containerPath)
		removeIfExists(keyPath)
		return EncryptResult{}, fmt.Errorf("cannot record encrypted image: %w", err)
	}

	v.log.Info("image encrypted",
		zap.String("id", id),
		zap.String("format", item.Format),
		zap.Int("width", item.Width),
		zap.Int("height", item.Height),
		zap.Int64("plain_size", item.PlainSize),
		zap.String("container", containerPath),
		zap.String("key_file", keyPath),
	)

	var warnings []string
	if req.Shred {
		warnings = ShredFile(req.InputPath)
		for _, w := range warnings {
			v.log.Debug("shred incomplete", zap.String("detail", w))
		}
	}

	return EncryptResult{
		ID:            id,
		ContainerPath: containerPath,
		KeyPath:       keyPath,
		Item:          item,
		Warnings:      warnings,
	}, nil
}

// encodeCapture validates that input is an image and returns its bytes in
// format. Input already in format is kept byte for byte.
func encodeCapture(input []byte, format imagecodec.Format, quality int) ([]byte, imagecodec.Image, error) {
	img, err := imagecodec.Decode(input)
	if err != nil {
		return nil, imagecodec.Image{}, fmt.Errorf("input is not a supported image: %w", err)
	}

	if img.Format == string(format) {
		return input, img, nil
	}

	encoded, err := imagecodec.Encode(img.Image, format, quality)
	if err != nil {
		return nil, imagecodec.Image{}, err
	}
	return encoded, img, nil
}
