package socks5

import (
	"errors"
	"fmt"
)

// maxCredentialLen is the largest username or password RFC 1929 can frame.
const maxCredentialLen = 255

// ErrCredentialTooLong is returned for a username or password that does not
// fit the one-byte RFC 1929 length field.
var ErrCredentialTooLong = errors.New("socks5: credential longer than 255 bytes")

// Auth configures username/password authentication for SOCKS5 negotiation.
// A nil *Auth negotiates no authentication at all.
type Auth struct {
	Username string
	Password string
}

// NewAuth applies the credential policy for optional username and password
// values. If neither is set no authentication is negotiated; if only one is
// set the other is sent empty.
func NewAuth(username, password *string) *Auth {
	if username == nil && password == nil {
		return nil
	}

	a := &Auth{}
	if username != nil {
		a.Username = *username
	}
	if password != nil {
		a.Password = *password
	}
	return a
}

// Method returns the single SOCKS5 method a client offers for a.
func (a *Auth) Method() byte {
	if a == nil {
		return MethodNone
	}
	return MethodUsernamePassword
}

// Validate reports whether a can be sent in a username/password request.
func (a *Auth) Validate() error {
	if a == nil {
		return nil
	}
	if len(a.Username) > maxCredentialLen {
		return fmt.Errorf("username: %w", ErrCredentialTooLong)
	}
	if len(a.Password) > maxCredentialLen {
		return fmt.Errorf("password: %w", ErrCredentialTooLong)
	}
	return nil
}
