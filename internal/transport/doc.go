// Package transport builds the HTTP clients pepfetch uses to reach the
// index and PEP documents.
//
// A Network decides how connections are dialed: directly, through a
// SOCKS5 proxy (golang.org/x/net/proxy), or through an embedded Tor daemon
// launched with tornago. A Network hands out Sessions; a Session owns one
// pooled *http.Client that is shared by every request of a batch and
// releases its idle connections on Close.
//
// Every request sent through a Session carries the configured User-Agent
// and extra headers, injected by a RoundTripper wrapper.
package transport
