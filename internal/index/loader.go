package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nao1215/pepfetch/internal/model"
)

// DefaultMaxIndexSize bounds the index response. The real index is a few MB.
const DefaultMaxIndexSize = 64 * 1024 * 1024 // 64MB

var (
	// ErrUnexpectedStatus is returned when the index endpoint answers outside 2xx.
	ErrUnexpectedStatus = errors.New("unexpected index response status")

	// ErrMalformedIndex is returned when the index body is not the expected JSON shape.
	ErrMalformedIndex = errors.New("malformed index")

	// ErrIndexTooLarge is returned when the index body exceeds the size limit.
	ErrIndexTooLarge = errors.New("index response too large")
)

// Loader fetches and decodes the PEP index.
type Loader struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	maxSize int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMaxSize sets the maximum accepted body size in bytes.
func WithMaxSize(size int64) Option {
	return func(l *Loader) {
		if size > 0 {
			l.maxSize = size
		}
	}
}

// NewLoader creates a Loader for the index at url using client.
// A nil client means http.DefaultClient.
func NewLoader(url string, client *http.Client, opts ...Option) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	l := &Loader{
		url:     url,
		client:  client,
		logger:  slog.Default(),
		maxSize: DefaultMaxIndexSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// URL returns the index endpoint.
func (l *Loader) URL() string {
	return l.url
}

// Load performs exactly one GET against the index endpoint and decodes it.
// Every failure is returned; nothing is retried.
func (l *Loader) Load(ctx context.Context) (model.Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	l.logger.Debug("loading PEP index", "url", l.url)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	// Read one byte past the limit to detect oversize bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if int64(len(body)) > l.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrIndexTooLarge, l.maxSize)
	}

	var idx model.Index
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedIndex, err)
	}

	l.logger.Info("loaded PEP index", "entries", len(idx), "with_url", idx.WithURL())
	return idx, nil
}
