package proxy

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RelayError is an I/O failure after a session was established.
type RelayError struct {
	Err error
}

func (e *RelayError) Error() string {
	return "relay: " + e.Err.Error()
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Stats counts the bytes relayed in each direction.
type Stats struct {
	// FromLeft is the number of bytes read from left and written to right.
	FromLeft int64
	// FromRight is the number of bytes read from right and written to left.
	FromRight int64
}

// CopyBidirectional copies left to right and right to left until either
// direction hits EOF or an error, then closes both connections and waits for
// the other direction to stop. The returned error is that of the direction
// that finished first, so a clean close on either side yields nil. Canceling
// ctx closes both connections and is not reported as an error.
func CopyBidirectional(ctx context.Context, left, right net.Conn) (Stats, error) {
	var closed atomic.Bool
	closeBoth := func() bool {
		if closed.Swap(true) {
			return false
		}
		_ = left.Close()
		_ = right.Close()
		return true
	}

	// If the context is canceled, ensure we close both sides to unblock Copy.
	stop := context.AfterFunc(ctx, func() { closeBoth() })
	defer stop()

	var stats Stats
	copyHalf := func(dst, src net.Conn, n *int64) func() error {
		return func() error {
			var err error
			*n, err = io.Copy(dst, src)
			if !closeBoth() {
				// The session was already torn down; this error is a
				// consequence of that.
				return nil
			}
			return err
		}
	}

	var g errgroup.Group
	g.Go(copyHalf(right, left, &stats.FromLeft))
	g.Go(copyHalf(left, right, &stats.FromRight))

	return stats, g.Wait()
}
