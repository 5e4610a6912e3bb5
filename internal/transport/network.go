package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// Default transport tuning.
const (
	// defaultMaxIdleConnsPerHost keeps enough warm connections for a batch
	// that fans out hundreds of requests to the same host.
	defaultMaxIdleConnsPerHost = 64

	defaultIdleConnTimeout = 90 * time.Second

	// maxRedirects matches net/http's own default.
	maxRedirects = 10
)

// dialFunc dials a connection the way http.Transport.DialContext expects.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configure the clients a Network hands out.
type Options struct {
	// Timeout is the per-request timeout. Zero disables it.
	Timeout time.Duration

	// UserAgent is set on every request that does not carry one.
	UserAgent string

	// Headers are set on every request that does not carry them.
	Headers map[string]string
}

// Option configures Options.
type Option func(*Options)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(o *Options) {
		o.UserAgent = userAgent
	}
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) {
		o.Headers = headers
	}
}

// Network produces Sessions that dial in a fixed way.
// A Network is safe for concurrent use.
type Network struct {
	name string
	dial dialFunc
	opts Options

	// tor is set for Networks started by StartTor; Close stops it.
	tor *EmbeddedTor
}

// Direct returns a Network that dials targets directly.
func Direct(opts ...Option) *Network {
	d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return newNetwork("direct", d.DialContext, opts)
}

// SOCKS5 returns a Network that dials every target through the SOCKS5
// proxy at address. The proxy is not contacted until the first request;
// use CheckProxy to probe it up front.
func SOCKS5(address string, opts ...Option) (*Network, error) {
	dial, err := socks5Dialer(address)
	if err != nil {
		return nil, err
	}
	return newNetwork("socks5://"+address, dial, opts), nil
}

func newNetwork(name string, dial dialFunc, opts []Option) *Network {
	n := &Network{name: name, dial: dial}
	for _, opt := range opts {
		opt(&n.opts)
	}
	return n
}

// socks5Dialer builds a context-aware SOCKS5 dial function.
func socks5Dialer(address string) (dialFunc, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}

	// Fall back to a plain dialer that abandons the dial on cancellation.
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := dialer.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()

		select {
		case result := <-resultCh:
			return result.conn, result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}

// isValidProxyAddress reports whether address is "host:port" with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Name describes how the Network dials, e.g. "direct" or "socks5://127.0.0.1:9050".
func (n *Network) Name() string {
	return n.name
}

// Options returns the client options of the Network.
func (n *Network) Options() Options {
	return n.opts
}

// NewSession creates a Session with its own connection pool.
func (n *Network) NewSession() (*Session, error) {
	if n.tor != nil && !n.tor.IsRunning() {
		return nil, ErrTorNotRunning
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         n.dial,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        defaultMaxIdleConnsPerHost,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: n.opts.UserAgent,
			headers:   n.opts.Headers,
		},
		Timeout: n.opts.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Session{client: client, transport: transport}, nil
}

// Close releases resources owned by the Network. For Tor networks this
// stops the daemon. Close is safe to call more than once.
func (n *Network) Close() error {
	if n.tor == nil {
		return nil
	}
	return n.tor.Stop()
}
