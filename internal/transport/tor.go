package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout is the bootstrap timeout used when none is given.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor manages a Tor daemon launched by tornago.
// The daemon listens on ephemeral SOCKS and control ports so several
// instances can coexist.
type EmbeddedTor struct {
	mu      sync.Mutex
	process *tornago.TorProcess

	socksAddr   string
	controlAddr string

	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the bootstrap timeout.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an EmbeddedTor. The daemon is not started until Start.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: DefaultTorStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon and waits for it to bootstrap.
// The tor binary must be installed and on PATH.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	// StartTorDaemon does not take a context; honor cancellation after the fact.
	if ctx.Err() != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop terminates the daemon. It is a no-op if the daemon is not running.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the daemon's SOCKS address, empty before Start.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.socksAddr
}

// ControlAddr returns the daemon's control address, empty before Start.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process != nil
}

// Network returns a Network that dials through the running daemon.
// Closing the Network stops the daemon.
func (e *EmbeddedTor) Network(opts ...Option) (*Network, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}

	socksAddr := e.SocksAddr()
	dial, err := socks5Dialer(socksAddr)
	if err != nil {
		return nil, err
	}

	n := newNetwork("tor via "+socksAddr, dial, opts)
	n.tor = e
	return n, nil
}

// StartTor launches an embedded Tor daemon and returns a Network routed
// through it.
func StartTor(ctx context.Context, startupTimeout time.Duration, opts ...Option) (*Network, error) {
	tor := NewEmbeddedTor(WithStartupTimeout(startupTimeout))
	if err := tor.Start(ctx); err != nil {
		return nil, err
	}

	n, err := tor.Network(opts...)
	if err != nil {
		_ = tor.Stop() //nolint:errcheck // best effort cleanup
		return nil, err
	}
	return n, nil
}
