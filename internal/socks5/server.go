package socks5

import (
	"fmt"
	"io"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Greeting describes what a client presented during negotiation.
type Greeting struct {
	// Methods lists the authentication methods the client offered.
	Methods []byte
	// Credentials holds the username/password sub-negotiation, or nil if
	// none took place.
	Credentials *Auth
}

// ServerNegotiate reads a client greeting and requires auth if it is
// non-nil. The returned Greeting is populated as far as negotiation got,
// even when an error is returned.
func ServerNegotiate(conn net.Conn, auth *Auth) (*Greeting, error) {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("negotiation request: %w", err)
	}
	g := &Greeting{Methods: neg.Methods}

	if auth == nil {
		if !slices.Contains(neg.Methods, MethodNone) {
			writeNoAcceptableMethods(conn)
			return g, fmt.Errorf("client does not support no-auth")
		}
		if _, err := txsocks5.NewNegotiationReply(MethodNone).WriteTo(conn); err != nil {
			return g, fmt.Errorf("negotiation reply: %w", err)
		}
		return g, nil
	}

	if !slices.Contains(neg.Methods, MethodUsernamePassword) {
		writeNoAcceptableMethods(conn)
		return g, fmt.Errorf("client does not support username/password")
	}
	if _, err := txsocks5.NewNegotiationReply(MethodUsernamePassword).WriteTo(conn); err != nil {
		return g, fmt.Errorf("negotiation reply: %w", err)
	}

	creds, err := readUserPass(conn)
	if err != nil {
		return g, fmt.Errorf("read userpass: %w", err)
	}
	g.Credentials = creds

	if *creds != *auth {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return g, ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return g, fmt.Errorf("write userpass: %w", err)
	}
	return g, nil
}

// readUserPass parses an RFC 1929 request. Unlike the library parser it
// accepts empty usernames and passwords, which clients send when only one
// of the two is configured.
func readUserPass(r io.Reader) (*Auth, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != txsocks5.UserPassVer {
		return nil, fmt.Errorf("unsupported userpass version %#x", hdr[0])
	}
	uname := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(r, uname); err != nil {
		return nil, err
	}

	plen := make([]byte, 1)
	if _, err := io.ReadFull(r, plen); err != nil {
		return nil, err
	}
	passwd := make([]byte, int(plen[0]))
	if _, err := io.ReadFull(r, passwd); err != nil {
		return nil, err
	}

	return &Auth{Username: string(uname), Password: string(passwd)}, nil
}

func ServerReadRequest(conn net.Conn) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}
