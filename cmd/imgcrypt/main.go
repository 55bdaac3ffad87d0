package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"imgcrypt/internal/config"
	"imgcrypt/internal/logging"
	"imgcrypt/internal/vault"
)

const usageText = `imgcrypt - encrypt captured images with AES-256-CFB

Usage:
  imgcrypt init
  imgcrypt encrypt [--format <fmt>] [--quality <n>] [--shred] <image>
  imgcrypt encrypt [--format <fmt>] [--quality <n>]   (reads from stdin)
  imgcrypt decrypt [--key <hex> | --key-file <path>] [--out <path>] <container|id>
  imgcrypt status
  imgcrypt remove [--keep-key] <id>

Options:
  --format <fmt>       capture encoding: png, jpeg, gif, bmp, tiff
  --quality <n>        JPEG quality 1-100
  --shred              best-effort file shredding (file input only)
  --key <hex>          64-character hex key
  --key-file <path>    file containing an "Encryption Key: <hex>" line
  --out <path>         save the decrypted image; format follows the extension
  --keep-key           keep the key file when removing an image

imgcrypt encrypt prints the ID of the new encrypted image.
Anyone holding the key file can decrypt the image. Keep it safe.`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usageText)
		return 1
	}

	command := args[0]

	switch command {
	case "help", "--help", "-h":
		fmt.Fprintln(stdout, usageText)
		return 0
	case "init", "encrypt", "decrypt", "status", "remove":
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", command)
		fmt.Fprintln(stderr, usageText)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	app := &cli{cfg: cfg, log: logger, stdin: stdin, stdout: stdout, stderr: stderr}

	switch command {
	case "init":
		return app.handleInit(args[1:])
	case "encrypt":
		return app.handleEncrypt(args[1:])
	case "decrypt":
		return app.handleDecrypt(args[1:])
	case "status":
		return app.handleStatus(args[1:])
	default:
		return app.handleRemove(args[1:])
	}
}

type cli struct {
	cfg    *config.Config
	log    *zap.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "error: %v\n", err)
	return 1
}

func (c *cli) warn(msg string) {
	fmt.Fprintf(c.stderr, "warning: %s\n", msg)
}

func (c *cli) openVault() (*vault.Vault, error) {
	return vault.NewFromConfig(c.cfg, c.log)
}

// newFlagSet returns a flag set that reports to stderr instead of exiting.
func (c *cli) newFlagSet(name string, usage ...string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		for i, line := range usage {
			if i == 0 {
				fmt.Fprintln(c.stderr, "Usage: "+line)
			} else {
				fmt.Fprintln(c.stderr, "       "+line)
			}
		}
		fs.PrintDefaults()
	}
	return fs
}

// parse returns -1 on success, otherwise the exit code to return.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	return -1
}

func (c *cli) handleInit(args []string) int {
	initFlags := c.newFlagSet("init", "imgcrypt init")
	if code := parse(initFlags, args); code >= 0 {
		return code
	}

	if len(initFlags.Args()) > 0 {
		fmt.Fprintln(c.stderr, "error: init takes no arguments")
		initFlags.Usage()
		return 1
	}

	v, err := c.openVault()
	if err != nil {
		return c.fail(err)
	}
	defer v.Close()

	fmt.Fprintln(c.stdout, v.Layout().BaseDir)
	return 0
}

func (c *cli) handleEncrypt(args []string) int {
	encryptFlags := c.newFlagSet("encrypt",
		"imgcrypt encrypt [--format <fmt>] [--quality <n>] [--shred] <image>",
		"imgcrypt encrypt [--format <fmt>] [--quality <n>]  (reads from stdin)")
	format := encryptFlags.String("format", "", "capture encoding (png, jpeg, gif, bmp, tiff)")
	quality := encryptFlags.Int("quality", 0, "JPEG quality 1-100")
	shred := encryptFlags.Bool("shred", false, "best-effort file shredding (file input only)")

	if code := parse(encryptFlags, args); code >= 0 {
		return code
	}

	remaining := encryptFlags.Args()
	if len(remaining) > 1 {
		fmt.Fprintln(c.stderr, "error: too many arguments")
		encryptFlags.Usage()
		return 1
	}

	var inputPath string
	if len(remaining) == 1 {
		inputPath = remaining[0]
	}

	// Validate --shred usage
	if *shred && inputPath == "" {
		fmt.Fprintln(c.stderr, "error: --shred can only be used with file input")
		return 1
	}

	var input io.Reader
	if inputPath == "" && !isTerminal(c.stdin) {
		input = c.stdin
	}

	if *shred {
		c.warn(vault.ShredNotice)
	}

	v, err := c.openVault()
	if err != nil {
		return c.fail(err)
	}
	defer v.Close()

	result, err := v.Encrypt(vault.EncryptRequest{
		InputPath: inputPath,
		Input:     input,
		Format:    *format,
		Quality:   *quality,
		Shred:     *shred,
	})
	if err != nil {
		return c.fail(err)
	}

	for _, warning := range result.Warnings {
		c.warn(warning)
	}

	fmt.Fprintln(c.stdout, result.ID)
	return 0
}

func (c *cli) handleDecrypt(args []string) int {
	decryptFlags := c.newFlagSet("decrypt",
		"imgcrypt decrypt [--key <hex> | --key-file <path>] [--out <path>] <container|id>")
	keyHex := decryptFlags.String("key", "", "64-character hex key")
	keyFile := decryptFlags.String("key-file", "", "file containing an \"Encryption Key:\" line")
	out := decryptFlags.String("out", "", "save the decrypted image to this path")

	if code := parse(decryptFlags, args); code >= 0 {
		return code
	}

	remaining := decryptFlags.Args()
	if len(remaining) != 1 {
		fmt.Fprintln(c.stderr, "error: decrypt requires exactly one container path or id")
		decryptFlags.Usage()
		return 1
	}

	if *keyHex != "" && *keyFile != "" {
		fmt.Fprintln(c.stderr, "error: --key and --key-file cannot be used together")
		return 1
	}

	v, err := c.openVault()
	if err != nil {
		return c.fail(err)
	}
	defer v.Close()

	req := vault.DecryptRequest{
		Container:  remaining[0],
		KeyHex:     *keyHex,
		KeyFile:    *keyFile,
		OutputPath: *out,
	}

	result, err := v.Decrypt(req)
	if errors.Is(err, vault.ErrKeyRequired) && isTerminal(c.stdin) {
		prompted, perr := c.promptKey()
		if perr != nil {
			return c.fail(perr)
		}
		req.KeyHex = prompted
		result, err = v.Decrypt(req)
	}
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "decrypted: %s %dx%d\n", result.Image.Format, result.Image.Width(), result.Image.Height())
	if result.SavedPath != "" {
		fmt.Fprintf(c.stdout, "saved: %s\n", result.SavedPath)
	}
	return 0
}

// promptKey reads a key from the terminal with echo disabled.
func (c *cli) promptKey() (string, error) {
	f := c.stdin.(*os.File)
	fmt.Fprint(c.stderr, "Encryption key: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(c.stderr)
	if err != nil {
		return "", fmt.Errorf("cannot read key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *cli) handleStatus(args []string) int {
	statusFlags := c.newFlagSet("status", "imgcrypt status")
	if code := parse(statusFlags, args); code >= 0 {
		return code
	}

	if len(statusFlags.Args()) > 0 {
		fmt.Fprintln(c.stderr, "error: status takes no arguments")
		statusFlags.Usage()
		return 1
	}

	v, err := c.openVault()
	if err != nil {
		return c.fail(err)
	}
	defer v.Close()

	result, err := v.Status()
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprint(c.stdout, vault.FormatStatusOutput(result))

	// Exit with error if any item is inconsistent
	if result.ValidationFailed {
		fmt.Fprintln(c.stderr, "error: one or more encrypted images failed validation")
		return 1
	}
	return 0
}

func (c *cli) handleRemove(args []string) int {
	removeFlags := c.newFlagSet("remove", "imgcrypt remove [--keep-key] <id>")
	keepKey := removeFlags.Bool("keep-key", false, "keep the key file")

	if code := parse(removeFlags, args); code >= 0 {
		return code
	}

	remaining := removeFlags.Args()
	if len(remaining) != 1 {
		fmt.Fprintln(c.stderr, "error: remove requires exactly one id")
		removeFlags.Usage()
		return 1
	}

	v, err := c.openVault()
	if err != nil {
		return c.fail(err)
	}
	defer v.Close()

	if err := v.Remove(remaining[0], *keepKey); err != nil {
		return c.fail(err)
	}
	return 0
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
