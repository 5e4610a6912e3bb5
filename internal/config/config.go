package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	// DefaultIndexURL is the machine-readable PEP index published by python.org.
	DefaultIndexURL = "https://peps.python.org/api/peps.json"

	// DefaultOutputDir is the directory artifacts are written to, relative to
	// the working directory.
	DefaultOutputDir = "downloaded_peps"

	// DefaultTimeout bounds each HTTP request. A hung server must not stall
	// the batch forever, so the default is finite. Zero disables the timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultConcurrency of 0 means one in-flight request per PEP.
	DefaultConcurrency = 0

	// DefaultSelector locates the rendered PEP body in a document.
	DefaultSelector = "section#pep-content"

	// DefaultUserAgent identifies pepfetch in HTTP requests.
	DefaultUserAgent = "pepfetch/1.0 (+https://github.com/nao1215/pepfetch)"

	// DefaultMaxBodySize limits how much of a response is read.
	// Rendered PEPs are well below 1MB; the largest ones are around 500KB.
	DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "pepfetch"
)

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration options for pepfetch.
// It is populated from defaults, then the optional config file, then CLI
// flags, and passed down explicitly rather than kept in global state.
type Config struct {
	// IndexURL is the endpoint returning the JSON PEP index.
	IndexURL string `validate:"required,http_url"`

	// OutputDir is the directory artifacts are written to. Created if missing.
	OutputDir string

	// Timeout is the per-request timeout. Zero disables it.
	Timeout time.Duration

	// Concurrency bounds the number of in-flight fetches. Zero means unbounded.
	Concurrency int `validate:"gte=0"`

	// Selector is the CSS selector of the content region.
	Selector string

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Larger bodies fail the item. Zero means DefaultMaxBodySize.
	MaxBodySize int64 `validate:"gte=0"`

	// Headers are extra HTTP headers added to every request.
	Headers map[string]string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	// Empty means direct connections unless UseTor is set.
	ProxyAddress string `validate:"omitempty,hostname_port"`

	// UseTor routes all traffic through an embedded Tor daemon.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap. Only used when UseTor is set.
	TorStartupTimeout time.Duration

	// SaveHistory records runs and per-item outcomes in the history database.
	SaveHistory bool

	// DBDir is the directory holding the history database.
	// Defaults to the XDG data directory.
	DBDir string

	// JSONReport selects the JSON summary report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown summary report. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the path the summary report is written to. Empty means stdout.
	ReportFile string

	// Progress renders a progress bar on stderr while fetching.
	Progress bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit config file path. Empty means search
	// the default locations.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		IndexURL:          DefaultIndexURL,
		OutputDir:         DefaultOutputDir,
		Timeout:           DefaultTimeout,
		Concurrency:       DefaultConcurrency,
		Selector:          DefaultSelector,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		SaveHistory:       true,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for pepfetch.
// On Linux: ~/.local/share/pepfetch
// On macOS: ~/Library/Application Support/pepfetch
// On Windows: %LOCALAPPDATA%\pepfetch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for pepfetch.
// On Linux: ~/.config/pepfetch
// On macOS: ~/Library/Application Support/pepfetch
// On Windows: %APPDATA%\pepfetch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectiveMaxBodySize returns MaxBodySize, falling back to the default when unset.
func (c *Config) EffectiveMaxBodySize() int64 {
	if c.MaxBodySize <= 0 {
		return DefaultMaxBodySize
	}
	return c.MaxBodySize
}

// Validate checks if the configuration is valid.
// It returns the first problem found, as a wrapped sentinel error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	if u, err := url.Parse(c.IndexURL); err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidIndexURL, c.IndexURL)
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrEmptyOutputDir
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if strings.TrimSpace(c.Selector) == "" {
		return ErrEmptySelector
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingNetwork
	}

	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}

	return nil
}

// fieldError converts a struct tag violation into the package's sentinel error.
func fieldError(fe validator.FieldError) error {
	switch fe.StructField() {
	case "IndexURL":
		return fmt.Errorf("%w: %q", ErrInvalidIndexURL, fe.Value())
	case "Concurrency":
		return ErrInvalidConcurrency
	case "MaxBodySize":
		return ErrInvalidMaxBodySize
	case "ProxyAddress":
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, fe.Value())
	default:
		return fmt.Errorf("invalid %s: failed %q", fe.Field(), fe.Tag())
	}
}
