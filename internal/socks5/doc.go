// Package socks5 provides the small SOCKS5 handshake used by mcproxy to reach
// its upstream through a proxy.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 to keep
// the credential policy and error reporting in one place. The server half
// exists so tests can stand up an in-process proxy that speaks the same wire
// format.
//
// This package is not intended to be a full SOCKS5 server/client implementation;
// it is a thin layer around the library primitives.
package socks5
