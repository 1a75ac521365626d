package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/die-net/mcproxy/internal/socks5"
)

var aLongTimeAgo = time.Unix(1, 0)

// SOCKS5ProxyDialer tunnels TCP connections through a SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      *socks5.Auth
	direct    Dialer
}

// NewSOCKS5ProxyDialer returns a dialer for the proxy at proxyAddr. A nil auth
// negotiates no authentication.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr string, auth *socks5.Auth) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      auth,
		direct:    NewDirectDialer(cfg),
	}
}

// ProxyAddr returns the proxy's host:port.
func (d *SOCKS5ProxyDialer) ProxyAddr() string {
	return d.proxyAddr
}

// Auth returns the credentials offered to the proxy, or nil.
func (d *SOCKS5ProxyDialer) Auth() *socks5.Auth {
	return d.auth
}

// DialContext connects to the proxy and asks it to CONNECT to address. Any
// failure is returned as a *ConnectError; nothing is retried.
func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, &ConnectError{Proxy: d.proxyAddr, Target: address, Err: fmt.Errorf("unsupported network %q", network)}
	}

	conn, err := d.direct.DialContext(ctx, network, d.proxyAddr)
	if err != nil {
		return nil, &ConnectError{Proxy: d.proxyAddr, Target: address, Err: err}
	}

	if err := d.handshake(ctx, conn, address); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Proxy: d.proxyAddr, Target: address, Err: err}
	}

	return conn, nil
}

func (d *SOCKS5ProxyDialer) handshake(ctx context.Context, conn net.Conn, address string) error {
	if d.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	// Unblock the handshake if ctx is canceled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})

	err := socks5.ClientDial(conn, d.auth, address)
	if !stop() {
		return fmt.Errorf("socks5 handshake: %w", ctx.Err())
	}
	if err != nil {
		return err
	}

	// Clear deadline after handshake
	return conn.SetDeadline(time.Time{})
}
