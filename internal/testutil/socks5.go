package testutil

import (
	"net"
	"testing"

	"github.com/die-net/mcproxy/internal/socks5"
)

// SOCKS5Session records one handshake seen by a SOCKS5Proxy.
type SOCKS5Session struct {
	Greeting *socks5.Greeting
	Target   string
	Err      error
}

// SOCKS5Proxy is an in-process SOCKS5 proxy that, instead of dialing the
// requested target, hands the tunneled connection to an upstream handler.
type SOCKS5Proxy struct {
	net.Listener

	// Sessions receives one entry per handshake, successful or not.
	Sessions chan SOCKS5Session
}

// StartSOCKS5Proxy listens on loopback and accepts connections until the test
// ends. auth, if non-nil, is required from clients. upstream is called with
// each successfully tunneled connection, standing in for the CONNECT target.
func StartSOCKS5Proxy(t *testing.T, auth *socks5.Auth, upstream func(target string, c net.Conn)) *SOCKS5Proxy {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	p := &SOCKS5Proxy{Listener: ln, Sessions: make(chan SOCKS5Session, 16)}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go p.handle(c, auth, upstream)
		}
	}()

	return p
}

func (p *SOCKS5Proxy) handle(c net.Conn, auth *socks5.Auth, upstream func(string, net.Conn)) {
	defer c.Close()

	greeting, err := socks5.ServerNegotiate(c, auth)
	if err != nil {
		p.Sessions <- SOCKS5Session{Greeting: greeting, Err: err}
		return
	}

	req, err := socks5.ServerReadRequest(c)
	if err != nil {
		p.Sessions <- SOCKS5Session{Greeting: greeting, Err: err}
		return
	}
	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(c, req.Atyp)
		return
	}

	if err := socks5.WriteSuccessReply(c, c.LocalAddr()); err != nil {
		p.Sessions <- SOCKS5Session{Greeting: greeting, Target: req.Address(), Err: err}
		return
	}
	p.Sessions <- SOCKS5Session{Greeting: greeting, Target: req.Address()}

	if upstream != nil {
		upstream(req.Address(), c)
	}
}
