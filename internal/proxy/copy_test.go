package proxy

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// relayPair returns the outer ends of two pipes whose inner ends are being
// relayed by CopyBidirectional, and a channel with its result.
func relayPair(t *testing.T, ctx context.Context) (net.Conn, net.Conn, <-chan error) {
	t.Helper()

	aOuter, aInner := net.Pipe()
	bInner, bOuter := net.Pipe()
	t.Cleanup(func() {
		_ = aOuter.Close()
		_ = bOuter.Close()
	})

	done := make(chan error, 1)
	go func() {
		_, err := CopyBidirectional(ctx, aInner, bInner)
		done <- err
	}()

	return aOuter, bOuter, done
}

func TestCopyBidirectionalRoundTrip(t *testing.T) {
	a, b, done := relayPair(t, context.Background())

	aToB := make([]byte, 256<<10)
	bToA := make([]byte, 128<<10)
	_, _ = rand.Read(aToB)
	_, _ = rand.Read(bToA)

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Write(aToB)
		return err
	})
	g.Go(func() error {
		_, err := b.Write(bToA)
		return err
	})

	gotAtB := make([]byte, len(aToB))
	gotAtA := make([]byte, len(bToA))
	g.Go(func() error {
		_, err := io.ReadFull(b, gotAtB)
		return err
	})
	g.Go(func() error {
		_, err := io.ReadFull(a, gotAtA)
		return err
	})

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotAtB, aToB) {
		t.Fatal("a->b data corrupted")
	}
	if !bytes.Equal(gotAtA, bToA) {
		t.Fatal("b->a data corrupted")
	}

	// A clean close on one side ends the session without error and closes
	// the other side.
	_ = a.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
	}

	if _, err := b.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on other side, got %v", err)
	}
}

func TestCopyBidirectionalStats(t *testing.T) {
	aOuter, aInner := net.Pipe()
	bInner, bOuter := net.Pipe()

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := CopyBidirectional(context.Background(), aInner, bInner)
		done <- result{stats, err}
	}()

	go func() { _, _ = io.Copy(io.Discard, bOuter) }()

	if _, err := aOuter.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	_ = aOuter.Close()

	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.stats.FromLeft != 5 || r.stats.FromRight != 0 {
		t.Fatalf("unexpected stats %+v", r.stats)
	}
}

type errConn struct {
	net.Conn
	err error
}

func (c *errConn) Read([]byte) (int, error) { return 0, c.err }

func TestCopyBidirectionalError(t *testing.T) {
	boom := errors.New("boom")

	aOuter, aInner := net.Pipe()
	defer aOuter.Close()
	bInner, bOuter := net.Pipe()
	defer bOuter.Close()

	_, err := CopyBidirectional(context.Background(), &errConn{Conn: aInner, err: boom}, bInner)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, b, done := relayPair(t, ctx)

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancel should not be an error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancel")
	}

	if _, err := a.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected a to be closed")
	}
	if _, err := b.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected b to be closed")
	}
}
