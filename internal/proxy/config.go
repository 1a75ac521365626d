package proxy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/die-net/mcproxy/internal/dialer"
)

// Resolver turns a domain into the host:port to dial.
type Resolver interface {
	Resolve(ctx context.Context, domain string) (string, error)
}

type Config struct {
	// Domain is resolved afresh for every accepted connection.
	Domain string

	Resolver Resolver
	Dialer   dialer.Dialer

	Logger zerolog.Logger
}
