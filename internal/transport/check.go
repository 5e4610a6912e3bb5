package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// checkProxyTimeout bounds the whole probe.
const checkProxyTimeout = 2 * time.Second

const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// CheckProxy probes the SOCKS5 proxy at address by performing the method
// negotiation of the handshake. It does not ask the proxy to connect
// anywhere, so it works without outbound network access.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version 5, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if reply[0] != socks5Version {
		return ProxyStatusWrongType
	}
	// 0xFF means no acceptable method; anything else is an auth demand.
	if reply[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
