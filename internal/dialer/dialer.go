package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/die-net/mcproxy/internal/socks5"
)

const defaultSOCKS5Port = "1080"

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses proxy and constructs a SOCKS5 proxy dialer.
//
// proxy is either host:port or socks5://[user[:pass]@]host[:port]; socks5h
// is accepted as a synonym since host names are always sent to the proxy
// unresolved. username and password, when non-nil, override credentials
// embedded in the URL.
func New(cfg Config, proxy string, username, password *string) (*SOCKS5ProxyDialer, error) {
	addr, urlUser, urlPass, err := ParseProxy(proxy)
	if err != nil {
		return nil, err
	}

	if username == nil {
		username = urlUser
	}
	if password == nil {
		password = urlPass
	}

	auth := socks5.NewAuth(username, password)
	if err := auth.Validate(); err != nil {
		return nil, err
	}

	return NewSOCKS5ProxyDialer(cfg, addr, auth), nil
}

// ParseProxy splits a proxy specification into its host:port and any
// credentials present in it.
func ParseProxy(proxy string) (addr string, username, password *string, err error) {
	if !strings.Contains(proxy, "://") {
		if err := validateHostPort(proxy); err != nil {
			return "", nil, nil, err
		}
		return proxy, nil, nil, nil
	}

	u, err := url.Parse(proxy)
	if err != nil {
		return "", nil, nil, fmt.Errorf("invalid url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "socks5", "socks5h":
	case "":
		return "", nil, nil, errors.New("invalid url: missing scheme")
	default:
		return "", nil, nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}

	if u.Path != "" && u.Path != "/" {
		return "", nil, nil, errors.New("invalid URL: path should be empty")
	}

	addr = u.Host
	if host := u.Hostname(); host != "" && u.Port() == "" {
		addr = net.JoinHostPort(host, defaultSOCKS5Port)
	}
	if err := validateHostPort(addr); err != nil {
		return "", nil, nil, err
	}

	if u.User != nil {
		user := u.User.Username()
		username = &user
		if pass, ok := u.User.Password(); ok {
			password = &pass
		}
	}

	return addr, username, password, nil
}

func validateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid proxy address: %w", err)
	}
	if host == "" {
		return fmt.Errorf("invalid proxy address %q: missing host", addr)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return fmt.Errorf("invalid proxy address %q: bad port", addr)
	}
	return nil
}
