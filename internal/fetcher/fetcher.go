package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nao1215/pepfetch/internal/extract"
	"github.com/nao1215/pepfetch/internal/model"
	"github.com/nao1215/pepfetch/internal/store"
	"github.com/nao1215/pepfetch/internal/transport"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxBodySize limits how much of a document is read.
const DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB

// OutcomeHook observes every outcome of a batch, including skips.
// Hooks are called one at a time, never concurrently.
type OutcomeHook func(model.Outcome)

// DigestLookup returns the digest recorded for a PEP by an earlier run.
type DigestLookup func(model.Number) (digest string, ok bool)

// Fetcher runs batches of PEP downloads.
type Fetcher struct {
	store       *store.Store
	network     *transport.Network
	extractor   *extract.Extractor
	concurrency int
	maxBodySize int64
	logger      *slog.Logger
	hooks       []OutcomeHook
	previous    DigestLookup

	// hookMu serializes hook calls.
	hookMu sync.Mutex
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithNetwork sets the network sessions are opened on. Default: transport.Direct().
func WithNetwork(network *transport.Network) Option {
	return func(f *Fetcher) {
		if network != nil {
			f.network = network
		}
	}
}

// WithExtractor sets the content extractor. Default: extract.Default().
func WithExtractor(extractor *extract.Extractor) Option {
	return func(f *Fetcher) {
		if extractor != nil {
			f.extractor = extractor
		}
	}
}

// WithConcurrency bounds the number of in-flight tasks.
// Zero or negative means one goroutine per entry.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		f.concurrency = n
	}
}

// WithMaxBodySize sets the document size limit in bytes.
// Zero or negative keeps the default.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithLogger sets the logger for per-item and batch messages.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithOutcomeHook registers a hook called for every outcome.
func WithOutcomeHook(hook OutcomeHook) Option {
	return func(f *Fetcher) {
		if hook != nil {
			f.hooks = append(f.hooks, hook)
		}
	}
}

// WithPreviousDigests enables change detection against digests of an earlier run.
func WithPreviousDigests(lookup DigestLookup) Option {
	return func(f *Fetcher) {
		f.previous = lookup
	}
}

// New creates a Fetcher writing artifacts through st.
func New(st *store.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:       st,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.network == nil {
		f.network = transport.Direct()
	}
	if f.extractor == nil {
		f.extractor = extract.Default()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// FetchAll processes every entry of idx and returns one outcome per entry.
//
// Only setup failures are returned as errors: a cancelled context before
// any work, an output directory that cannot be created, or a session that
// cannot be opened. Per-item failures are reported in the Summary.
func (f *Fetcher) FetchAll(ctx context.Context, idx model.Index) (*model.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := f.store.EnsureDir(); err != nil {
		return nil, err
	}

	session, err := f.network.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open HTTP session: %w", err)
	}
	defer session.Close()
	client := session.Client()

	numbers := idx.Numbers()
	summary := model.NewSummary("", f.store.Dir())
	outcomes := make([]model.Outcome, len(numbers))

	f.logger.Info("starting batch",
		"entries", len(numbers),
		"with_url", idx.WithURL(),
		"concurrency", f.concurrency,
		"network", f.network.Name(),
	)

	// No group context: a failed item must not cancel its siblings.
	var g errgroup.Group
	if f.concurrency > 0 {
		g.SetLimit(f.concurrency)
	}

	for i, number := range numbers {
		entry := idx[number]

		if !entry.HasURL() {
			f.logger.Info("skipping PEP without URL", "pep", number.String())
			outcome := model.Skipped(entry)
			outcome.Number = number
			outcomes[i] = outcome
			f.emit(outcome)
			continue
		}

		g.Go(func() error {
			outcome := f.FetchOne(ctx, client, number, entry.URL)
			outcome.Title = entry.Title
			outcomes[i] = outcome
			f.emit(outcome)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // tasks never return errors

	summary.Outcomes = outcomes
	summary.Finish()

	f.logger.Info("batch complete",
		"written", summary.Written(),
		"skipped", summary.Skipped(),
		"failed", summary.Failed(),
		"elapsed", summary.Elapsed(),
	)
	return summary, nil
}

// FetchOne downloads the document at url, extracts its content region and
// writes the artifact for number. It never returns an error: every failure
// is classified into the returned Outcome, and no artifact is created or
// modified unless the outcome is written.
func (f *Fetcher) FetchOne(ctx context.Context, client *http.Client, number model.Number, url string) model.Outcome {
	start := time.Now()
	path := f.store.Path(number)

	text, status, err := f.retrieve(ctx, client, url)
	var artifact store.Artifact
	if err == nil {
		artifact, err = f.store.Write(number, text)
		if err != nil {
			status = model.StatusWriteFailed
		}
	}

	if err != nil {
		outcome := model.Failed(number, url, path, status, err)
		outcome.Duration = time.Since(start)
		f.logger.Warn("failed to process PEP",
			"pep", number.String(),
			"url", url,
			"status", status.String(),
			"error", err,
		)
		return outcome
	}

	outcome := model.Outcome{
		Number:   number,
		URL:      url,
		Path:     path,
		Status:   model.StatusWritten,
		Bytes:    artifact.Bytes,
		Digest:   artifact.Digest,
		Changed:  f.changed(number, artifact.Digest),
		Duration: time.Since(start),
	}

	attrs := []any{
		"pep", number.String(),
		"path", outcome.Path,
		"bytes", outcome.Bytes,
	}
	if outcome.Changed != nil {
		attrs = append(attrs, "changed", *outcome.Changed)
	}
	f.logger.Info("wrote PEP", attrs...)
	return outcome
}

// retrieve performs the fetch and extract stages. On failure it returns
// the status of the stage that failed.
func (f *Fetcher) retrieve(ctx context.Context, client *http.Client, url string) (string, model.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", model.StatusFetchFailed, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return "", model.StatusFetchFailed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", model.StatusFetchFailed,
			fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		return "", model.StatusFetchFailed, err
	}

	text, err := f.extractor.ExtractReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if errors.Is(err, extract.ErrContentNotFound) {
		return "", model.StatusExtractFailed, err
	}
	if err != nil {
		return "", model.StatusFetchFailed, err
	}
	return text, model.StatusWritten, nil
}

// readBody reads r fully, failing when it exceeds the size limit.
func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	// Read one byte past the limit to detect oversize bodies.
	body, err := io.ReadAll(io.LimitReader(r, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}
	return body, nil
}

// changed compares digest with the previous run's digest, if any.
func (f *Fetcher) changed(number model.Number, digest string) *bool {
	if f.previous == nil {
		return nil
	}
	prev, ok := f.previous(number)
	if !ok {
		return nil
	}
	changed := prev != digest
	return &changed
}

// emit passes an outcome to every hook, one outcome at a time.
func (f *Fetcher) emit(outcome model.Outcome) {
	if len(f.hooks) == 0 {
		return
	}
	f.hookMu.Lock()
	defer f.hookMu.Unlock()
	for _, hook := range f.hooks {
		hook(outcome)
	}
}
