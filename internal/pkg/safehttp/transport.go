// Package safehttp provides an HTTP transport for upstream model endpoints
// that refuses to dial internal addresses.
package safehttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrPrivateAddress is returned when an upstream resolves to a loopback,
// private or link-local address.
var ErrPrivateAddress = errors.New("upstream address is not public")

// SafeTransport rejects connections to private or loopback IP ranges.
var SafeTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	DialContext:           dialPublic,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// dialPublic checks the address actually connected to so DNS rebinding
// cannot slip past a pre-resolution check.
func dialPublic(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		conn.Close()
		return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
	}

	if !Public(ip) {
		conn.Close()
		return nil, fmt.Errorf("dial %s (%s): %w", addr, ip, ErrPrivateAddress)
	}

	return conn, nil
}

// Public reports whether ip may be dialed.
func Public(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}
