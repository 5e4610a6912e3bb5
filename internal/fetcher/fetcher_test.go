package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pepfetch/internal/extract"
	"github.com/nao1215/pepfetch/internal/model"
	"github.com/nao1215/pepfetch/internal/store"
	"github.com/nao1215/pepfetch/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pepPage renders a document with the given body in the content region.
func pepPage(body string) string {
	return `<html><body><nav>menu</nav><section id="pep-content">` + body + `</section></body></html>`
}

// newPEPServer serves pages keyed by path. Paths not in pages get 404.
// "/hang" blocks until the client gives up.
func newPEPServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hang" {
			<-r.Context().Done()
			return
		}
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no file at %s, got %v", path, err)
	}
}

// TestFetchAllScenario covers a mixed index: a good page, a missing URL
// and a server that never answers.
func TestFetchAllScenario(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{"/1": pepPage("Hello")})
	dir := filepath.Join(t.TempDir(), "downloaded_peps")

	idx := model.Index{
		1: {Number: 1, URL: srv.URL + "/1"},
		2: {Number: 2},
		3: {Number: 3, URL: srv.URL + "/hang"},
	}

	f := New(store.New(dir),
		WithNetwork(transport.Direct(transport.WithTimeout(200*time.Millisecond))),
		WithLogger(quietLogger()),
	)

	summary, err := f.FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if got := readArtifact(t, filepath.Join(dir, "pep-0001.txt")); got != "Hello" {
		t.Errorf("pep-0001.txt = %q, want %q", got, "Hello")
	}
	assertNoFile(t, filepath.Join(dir, "pep-0002.txt"))
	assertNoFile(t, filepath.Join(dir, "pep-0003.txt"))

	if summary.Total() != 3 {
		t.Fatalf("expected 3 outcomes, got %d", summary.Total())
	}
	want := []model.Status{model.StatusWritten, model.StatusSkipped, model.StatusFetchFailed}
	for i, o := range summary.Outcomes {
		if o.Status != want[i] {
			t.Errorf("PEP %d: got %s, want %s", o.Number, o.Status, want[i])
		}
	}
	if summary.Failed() != 1 || summary.Skipped() != 1 || summary.Written() != 1 {
		t.Errorf("unexpected counts: written=%d skipped=%d failed=%d",
			summary.Written(), summary.Skipped(), summary.Failed())
	}
	if summary.OutputDir != dir {
		t.Errorf("unexpected output dir %q", summary.OutputDir)
	}
}

// TestFetchAllFailureClasses verifies each failure kind and that none
// creates an artifact or disturbs its siblings.
func TestFetchAllFailureClasses(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{
		"/ok":        pepPage("fine"),
		"/nomarker":  `<html><body><div id="pep-content">wrong element</div></body></html>`,
		"/oversized": pepPage(strings.Repeat("x", 4096)),
	})

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	dir := t.TempDir()
	idx := model.Index{
		10: {Number: 10, URL: srv.URL + "/ok"},
		11: {Number: 11, URL: srv.URL + "/missing"},
		12: {Number: 12, URL: srv.URL + "/nomarker"},
		13: {Number: 13, URL: closedURL + "/gone"},
		14: {Number: 14, URL: srv.URL + "/oversized"},
		15: {Number: 15, URL: "://not a url"},
	}

	f := New(store.New(dir),
		WithMaxBodySize(1024),
		WithLogger(quietLogger()),
	)

	summary, err := f.FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	want := map[model.Number]model.Status{
		10: model.StatusWritten,
		11: model.StatusFetchFailed,
		12: model.StatusExtractFailed,
		13: model.StatusFetchFailed,
		14: model.StatusFetchFailed,
		15: model.StatusFetchFailed,
	}
	for _, o := range summary.Outcomes {
		if o.Status != want[o.Number] {
			t.Errorf("PEP %d: got %s, want %s (err=%s)", o.Number, o.Status, want[o.Number], o.Err)
		}
		if o.Status.IsFailure() {
			if o.Err == "" {
				t.Errorf("PEP %d: failure without reason", o.Number)
			}
			assertNoFile(t, o.Path)
		}
	}

	if got := readArtifact(t, filepath.Join(dir, "pep-0010.txt")); got != "fine" {
		t.Errorf("unexpected sibling content %q", got)
	}

	byNumber := make(map[model.Number]model.Outcome)
	for _, o := range summary.Outcomes {
		byNumber[o.Number] = o
	}
	if !strings.Contains(byNumber[11].Err, "404") {
		t.Errorf("expected status code in error, got %q", byNumber[11].Err)
	}
	if !strings.Contains(byNumber[14].Err, ErrBodyTooLarge.Error()) {
		t.Errorf("expected body size error, got %q", byNumber[14].Err)
	}
	if !strings.Contains(byNumber[12].Err, extract.ErrContentNotFound.Error()) {
		t.Errorf("expected content not found error, got %q", byNumber[12].Err)
	}
}

// TestFetchAllKeepsPreviousArtifactOnFailure verifies that a failed fetch
// leaves an existing artifact untouched.
func TestFetchAllKeepsPreviousArtifactOnFailure(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{})
	dir := t.TempDir()
	st := store.New(dir)

	if err := os.WriteFile(st.Path(7), []byte("from last run"), 0o600); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}

	f := New(st, WithLogger(quietLogger()))
	summary, err := f.FetchAll(t.Context(), model.Index{7: {Number: 7, URL: srv.URL + "/7"}})
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if summary.Outcomes[0].Status != model.StatusFetchFailed {
		t.Errorf("expected fetch_failed, got %s", summary.Outcomes[0].Status)
	}
	if got := readArtifact(t, st.Path(7)); got != "from last run" {
		t.Errorf("artifact was modified: %q", got)
	}
}

// TestFetchAllIdempotent verifies that two runs produce byte-identical artifacts.
func TestFetchAllIdempotent(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{
		"/8":  pepPage("\n<h1>Style Guide</h1>\n<p>Tabs  or   spaces?</p>\n"),
		"/20": pepPage("The Zen of Python"),
	})
	dir := t.TempDir()
	idx := model.Index{
		8:  {Number: 8, URL: srv.URL + "/8"},
		20: {Number: 20, URL: srv.URL + "/20"},
	}

	run := func() map[string]string {
		f := New(store.New(dir), WithLogger(quietLogger()))
		if _, err := f.FetchAll(t.Context(), idx); err != nil {
			t.Fatalf("FetchAll returned error: %v", err)
		}
		files := make(map[string]string)
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read dir: %v", err)
		}
		for _, e := range entries {
			files[e.Name()] = readArtifact(t, filepath.Join(dir, e.Name()))
		}
		return files
	}

	first := run()
	second := run()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 artifacts per run, got %d and %d", len(first), len(second))
	}
	for name, content := range first {
		if second[name] != content {
			t.Errorf("%s differs between runs", name)
		}
	}
	if first["pep-0008.txt"] != "\nStyle Guide\nTabs  or   spaces?\n" {
		t.Errorf("whitespace not preserved: %q", first["pep-0008.txt"])
	}
}

// TestFetchAllWritesOnePerEntry verifies N entries with markers yield N files.
func TestFetchAllWritesOnePerEntry(t *testing.T) {
	t.Parallel()

	const n = 50
	pages := make(map[string]string, n)
	for i := 0; i < n; i++ {
		pages[fmt.Sprintf("/%d", i)] = pepPage(fmt.Sprintf("PEP %d body", i))
	}
	srv := newPEPServer(t, pages)

	idx := make(model.Index, n)
	for i := 0; i < n; i++ {
		idx[model.Number(i)] = model.Entry{Number: model.Number(i), URL: fmt.Sprintf("%s/%d", srv.URL, i)}
	}

	dir := t.TempDir()
	summary, err := New(store.New(dir), WithLogger(quietLogger())).FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if summary.Written() != n {
		t.Errorf("expected %d written, got %d", n, summary.Written())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != n {
		t.Errorf("expected %d files, got %d", n, len(entries))
	}
	if got := readArtifact(t, filepath.Join(dir, "pep-0042.txt")); got != "PEP 42 body" {
		t.Errorf("unexpected content %q", got)
	}
}

// TestFetchAllConcurrencyLimit verifies the in-flight bound.
func TestFetchAllConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = io.WriteString(w, pepPage("x"))
	}))
	defer srv.Close()

	idx := make(model.Index)
	for i := 0; i < 12; i++ {
		idx[model.Number(i)] = model.Entry{Number: model.Number(i), URL: srv.URL}
	}

	f := New(store.New(t.TempDir()), WithConcurrency(3), WithLogger(quietLogger()))
	summary, err := f.FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if summary.Written() != 12 {
		t.Errorf("expected 12 written, got %d", summary.Written())
	}
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 in-flight requests, saw %d", peak.Load())
	}
}

// TestFetchAllUnboundedRunsConcurrently verifies that without a limit every
// request is in flight at the same time. Each handler waits until all of
// them have arrived, so a sequential batch would fail every item.
func TestFetchAllUnboundedRunsConcurrently(t *testing.T) {
	t.Parallel()

	const n = 8
	var (
		arrived atomic.Int64
		once    sync.Once
	)
	all := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if arrived.Add(1) == n {
			once.Do(func() { close(all) })
		}
		select {
		case <-all:
			_, _ = io.WriteString(w, pepPage("x"))
		case <-time.After(2 * time.Second):
			http.Error(w, "not all requests arrived", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	idx := make(model.Index)
	for i := 1; i <= n; i++ {
		idx[model.Number(i)] = model.Entry{Number: model.Number(i), URL: srv.URL}
	}

	f := New(store.New(t.TempDir()), WithConcurrency(0), WithLogger(quietLogger()))
	summary, err := f.FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if summary.Written() != n {
		t.Errorf("expected %d written, got %d (failed %d)", n, summary.Written(), summary.Failed())
	}
}

// TestFetchAllHooks verifies every outcome reaches the hooks exactly once.
func TestFetchAllHooks(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{"/1": pepPage("one")})

	var mu sync.Mutex
	seen := make(map[model.Number]model.Status)
	var calls atomic.Int64
	hook := func(o model.Outcome) {
		calls.Add(1)
		mu.Lock()
		defer mu.Unlock()
		seen[o.Number] = o.Status
	}

	idx := model.Index{
		1: {Number: 1, URL: srv.URL + "/1"},
		2: {Number: 2, URL: ""},
		3: {Number: 3, URL: srv.URL + "/3"},
	}
	f := New(store.New(t.TempDir()), WithOutcomeHook(hook), WithOutcomeHook(nil), WithLogger(quietLogger()))
	if _, err := f.FetchAll(t.Context(), idx); err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("expected 3 hook calls, got %d", calls.Load())
	}
	if seen[1] != model.StatusWritten || seen[2] != model.StatusSkipped || seen[3] != model.StatusFetchFailed {
		t.Errorf("unexpected hook outcomes: %v", seen)
	}
}

// TestFetchAllChangeDetection verifies comparison with previous digests.
func TestFetchAllChangeDetection(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{
		"/1": pepPage("same"),
		"/2": pepPage("new text"),
		"/3": pepPage("first time"),
	})

	previous := map[model.Number]string{
		1: store.Digest([]byte("same")),
		2: store.Digest([]byte("old text")),
	}
	lookup := func(n model.Number) (string, bool) {
		d, ok := previous[n]
		return d, ok
	}

	idx := model.Index{
		1: {Number: 1, URL: srv.URL + "/1"},
		2: {Number: 2, URL: srv.URL + "/2"},
		3: {Number: 3, URL: srv.URL + "/3"},
	}
	f := New(store.New(t.TempDir()), WithPreviousDigests(lookup), WithLogger(quietLogger()))
	summary, err := f.FetchAll(t.Context(), idx)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	o := summary.Outcomes
	if o[0].Changed == nil || *o[0].Changed {
		t.Errorf("PEP 1 should be unchanged, got %v", o[0].Changed)
	}
	if o[1].Changed == nil || !*o[1].Changed {
		t.Errorf("PEP 2 should be changed, got %v", o[1].Changed)
	}
	if o[2].Changed != nil {
		t.Errorf("PEP 3 has no previous digest, got %v", *o[2].Changed)
	}
}

// TestFetchAllSetupErrors verifies the errors FetchAll does return.
func TestFetchAllSetupErrors(t *testing.T) {
	t.Parallel()

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		dir := filepath.Join(t.TempDir(), "out")
		_, err := New(store.New(dir), WithLogger(quietLogger())).FetchAll(ctx, model.Index{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("output path is a file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "out")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
		if _, err := New(store.New(path), WithLogger(quietLogger())).FetchAll(t.Context(), model.Index{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty index creates the directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "a", "b")
		summary, err := New(store.New(dir), WithLogger(quietLogger())).FetchAll(t.Context(), model.Index{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Total() != 0 {
			t.Errorf("expected no outcomes, got %d", summary.Total())
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Error("expected output directory to exist")
		}
	})
}

// TestFetchOneLogs verifies the per-item log lines.
func TestFetchOneLogs(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{"/1": pepPage("Hello")})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	f := New(store.New(t.TempDir()), WithLogger(logger))
	if _, err := f.FetchAll(t.Context(), model.Index{
		1: {Number: 1, URL: srv.URL + "/1"},
		2: {Number: 2},
		4: {Number: 4, URL: srv.URL + "/4"},
	}); err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		`msg="wrote PEP" pep=1`,
		`msg="skipping PEP without URL" pep=2`,
		`level=WARN msg="failed to process PEP" pep=4`,
		`status=fetch_failed`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output:\n%s", want, output)
		}
	}
}

// TestFetchOne tests a single fetch with an explicit client.
func TestFetchOne(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{"/8": pepPage("Readability counts.")})
	dir := t.TempDir()
	f := New(store.New(dir), WithLogger(quietLogger()))

	o := f.FetchOne(t.Context(), srv.Client(), 8, srv.URL+"/8")
	if o.Status != model.StatusWritten {
		t.Fatalf("expected written, got %s (%s)", o.Status, o.Err)
	}
	if o.Path != filepath.Join(dir, "pep-0008.txt") {
		t.Errorf("unexpected path %q", o.Path)
	}
	if o.Bytes != int64(len("Readability counts.")) {
		t.Errorf("unexpected byte count %d", o.Bytes)
	}
	if o.Digest != store.Digest([]byte("Readability counts.")) {
		t.Error("unexpected digest")
	}
	if o.Duration <= 0 {
		t.Error("expected a positive duration")
	}
}

// TestFetchOneFailureOutcome tests the fields of a failed outcome.
func TestFetchOneFailureOutcome(t *testing.T) {
	t.Parallel()

	srv := newPEPServer(t, map[string]string{"/9": `<html><body><main>no region</main></body></html>`})
	dir := t.TempDir()
	f := New(store.New(dir), WithLogger(quietLogger()))

	tests := []struct {
		name   string
		path   string
		status model.Status
	}{
		{"missing page", "/404", model.StatusFetchFailed},
		{"missing content region", "/9", model.StatusExtractFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := f.FetchOne(t.Context(), srv.Client(), 9, srv.URL+tt.path)
			if o.Status != tt.status {
				t.Fatalf("expected %s, got %s (%s)", tt.status, o.Status, o.Err)
			}
			if o.Number != 9 || o.URL != srv.URL+tt.path {
				t.Errorf("unexpected identity %d %q", o.Number, o.URL)
			}
			if o.Path != filepath.Join(dir, "pep-0009.txt") {
				t.Errorf("unexpected path %q", o.Path)
			}
			if o.Err == "" {
				t.Error("expected a failure reason")
			}
			if o.Bytes != 0 || o.Digest != "" || o.Changed != nil {
				t.Errorf("expected no artifact fields, got %+v", o)
			}
			if o.Duration <= 0 {
				t.Error("expected a positive duration")
			}
			assertNoFile(t, o.Path)
		})
	}
}
