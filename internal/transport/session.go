package transport

import (
	"net/http"
)

// Session is one pooled HTTP client scoped to a batch.
// Its client is safe for concurrent use by many goroutines.
type Session struct {
	client    *http.Client
	transport *http.Transport
}

// Client returns the session's HTTP client.
func (s *Session) Client() *http.Client {
	return s.client
}

// Close releases idle pooled connections. In-flight requests are not
// interrupted. Close is safe to call more than once.
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

// headerInjectingTransport is an http.RoundTripper that adds the session's
// User-Agent and extra headers to each request, leaving headers the
// request already sets untouched.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
// The request is cloned before modification, as RoundTrip must not mutate it.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" && len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}

	return t.base.RoundTrip(clone)
}
