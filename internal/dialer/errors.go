package dialer

import "fmt"

// ConnectError reports a failure to establish a tunnel to Target through the
// proxy at Proxy. Err is the underlying transport or handshake error.
type ConnectError struct {
	Proxy  string
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s via socks5 proxy %s: %v", e.Target, e.Proxy, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
