package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// DefaultMaxInputBytes caps the size of an image read for encryption.
	DefaultMaxInputBytes = 32 * 1024 * 1024

	// DefaultJPEGQuality is the capture quality when the capture format is JPEG.
	DefaultJPEGQuality = 90
)

// Config holds runtime settings for the imgcrypt tools.
type Config struct {
	// Home overrides the OS data directory when set.
	Home string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	// CaptureFormat is the encoding applied to an image before encryption.
	CaptureFormat string `validate:"oneof=png jpeg jpg gif bmp tiff tif"`
	JPEGQuality   int    `validate:"min=1,max=100"`
	MaxInputBytes int64  `validate:"min=1"`
}

var validate = validator.New()

// Load reads an optional .env file, then the environment, and applies defaults.
// The .env path comes from IMGCRYPT_ENV_FILE; a missing file is not an error.
func Load() (*Config, error) {
	envFile := getEnv("IMGCRYPT_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: cannot load %s: %w", envFile, err)
	}

	quality, err := getEnvInt("IMGCRYPT_JPEG_QUALITY", DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	maxInput, err := getEnvInt("IMGCRYPT_MAX_INPUT_BYTES", DefaultMaxInputBytes)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Home:          getEnv("IMGCRYPT_HOME", ""),
		LogLevel:      strings.ToLower(getEnv("IMGCRYPT_LOG_LEVEL", "warn")),
		LogFormat:     strings.ToLower(getEnv("IMGCRYPT_LOG_FORMAT", "console")),
		CaptureFormat: strings.ToLower(getEnv("IMGCRYPT_CAPTURE_FORMAT", "png")),
		JPEGQuality:   quality,
		MaxInputBytes: int64(maxInput),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: invalid %s value %v (must satisfy %s)", fe.Field(), fe.Value(), constraint(fe))
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, raw)
	}
	return n, nil
}
