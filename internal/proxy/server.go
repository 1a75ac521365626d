package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// Server is the accept loop. Each accepted connection is handled on its own
// goroutine: resolve, then connect upstream, then relay.
type Server struct {
	ctx context.Context
	cfg Config
	log zerolog.Logger
}

// NewServer returns a Server whose sessions are all closed when ctx is done.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg, log: cfg.Logger}
}

// Serve accepts connections on ln until it fails. It returns nil if ln was
// closed after the server's context was canceled.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go func() {
			log := s.log.With().Str("client", c.RemoteAddr().String()).Logger()
			if err := s.handle(c, log); err != nil {
				log.Warn().Err(err).Msg("connection failed")
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn, log zerolog.Logger) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	log.Debug().Str("domain", s.cfg.Domain).Msg("accepted")

	target, err := s.cfg.Resolver.Resolve(ctx, s.cfg.Domain)
	if err != nil {
		return err
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	defer up.Close()

	log.Info().Str("target", target).Msg("forwarding")

	stats, err := CopyBidirectional(ctx, conn, up)
	log.Debug().
		Str("target", target).
		Int64("sent", stats.FromLeft).
		Int64("received", stats.FromRight).
		Msg("session closed")
	if err != nil {
		return &RelayError{Err: err}
	}
	return nil
}
