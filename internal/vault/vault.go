// Package vault stores encrypted images and their key files on disk and
// recovers images from them.
//
// Layout under the base directory:
//
//	encrypted_images/<id>.bin   container: IV(16B) || AES-256-CFB(image bytes)
//	keys/<id>_key.txt           "Encryption Key: <hex>" plus informational lines
//	index.db                    bbolt catalog of items
//
// Containers and key files are independent files; the index only records
// which ones were written together. The index is opened per operation and
// closed right after; decrypting a container by path with a key never opens it.
package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"imgcrypt/internal/config"
	"imgcrypt/internal/imagecodec"
)

// Options configures a Vault.
type Options struct {
	// BaseDir is the data directory. Empty selects DefaultBaseDir.
	BaseDir string

	CaptureFormat imagecodec.Format
	JPEGQuality   int
	MaxInputBytes int64

	Logger *zap.Logger
}

// Vault encrypts images into its images directory and decrypts them back.
type Vault struct {
	layout        Layout
	log           *zap.Logger
	captureFormat imagecodec.Format
	jpegQuality   int
	maxInputBytes int64
	now           func() time.Time
}

// New prepares the directory layout. The index is not opened here.
func New(opts Options) (*Vault, error) {
	baseDir, err := ResolveBaseDir(opts.BaseDir)
	if err != nil {
		return nil, err
	}

	layout := NewLayout(baseDir)
	if err := EnsureDirectories(layout); err != nil {
		return nil, err
	}

	v := &Vault{
		layout:        layout,
		log:           opts.Logger,
		captureFormat: opts.CaptureFormat,
		jpegQuality:   opts.JPEGQuality,
		maxInputBytes: opts.MaxInputBytes,
		now:           time.Now,
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.captureFormat == "" {
		v.captureFormat = imagecodec.FormatPNG
	}
	if v.jpegQuality == 0 {
		v.jpegQuality = config.DefaultJPEGQuality
	}
	if v.maxInputBytes <= 0 {
		v.maxInputBytes = config.DefaultMaxInputBytes
	}

	v.log.Debug("vault opened", zap.String("base_dir", baseDir))
	return v, nil
}

// NewFromConfig builds a Vault from loaded configuration.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Vault, error) {
	format, err := imagecodec.ParseFormat(cfg.CaptureFormat)
	if err != nil {
		return nil, err
	}
	return New(Options{
		BaseDir:       cfg.Home,
		CaptureFormat: format,
		JPEGQuality:   cfg.JPEGQuality,
		MaxInputBytes: cfg.MaxInputBytes,
		Logger:        logger,
	})
}

// Layout returns the directory layout in use.
func (v *Vault) Layout() Layout { return v.layout }

// Close is a no-op: the index is opened per operation.
func (v *Vault) Close() error { return nil }

// lookup returns the index entry for id.
func (v *Vault) lookup(id string) (Item, error) {
	var item Item
	err := v.withIndex(func(x *Index) error {
		var err error
		item, err = x.Get(id)
		return err
	})
	return item, err
}

// withIndex opens the index, runs fn and closes the index again.
func (v *Vault) withIndex(fn func(*Index) error) error {
	x, err := OpenIndex(v.layout.IndexPath)
	if err != nil {
		return err
	}
	ferr := fn(x)
	if cerr := x.Close(); cerr != nil && ferr == nil {
		return fmt.Errorf("cannot close index: %w", cerr)
	}
	return ferr
}

var validate = validator.New()

// validateRequest checks struct tags on req and reports the first failure
// wrapped in ErrInvalidRequest.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "excluded_with":
		msg = fmt.Sprintf("%s cannot be combined with %s", fe.Field(), fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "max":
		msg = fmt.Sprintf("%s out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}
