package socks5

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"
)

func ptr(s string) *string { return &s }

func TestNewAuth(t *testing.T) {
	tests := []struct {
		name       string
		user, pass *string
		want       *Auth
		wantMethod byte
	}{
		{name: "neither", wantMethod: MethodNone},
		{name: "user_only", user: ptr("steve"), want: &Auth{Username: "steve"}, wantMethod: MethodUsernamePassword},
		{name: "pass_only", pass: ptr("hunter2"), want: &Auth{Password: "hunter2"}, wantMethod: MethodUsernamePassword},
		{name: "both", user: ptr("steve"), pass: ptr("hunter2"), want: &Auth{Username: "steve", Password: "hunter2"}, wantMethod: MethodUsernamePassword},
		{name: "explicit_empty", user: ptr(""), want: &Auth{}, wantMethod: MethodUsernamePassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAuth(tt.user, tt.pass)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
			if m := got.Method(); m != tt.wantMethod {
				t.Fatalf("method %#x want %#x", m, tt.wantMethod)
			}
		})
	}
}

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		auth *Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: &Auth{Username: "user", Password: "pass"}},
		{name: "user_only", auth: &Auth{Username: "user"}},
		{name: "pass_only", auth: &Auth{Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				greeting, err := ServerNegotiate(serverConn, tt.auth)
				if err != nil {
					return err
				}
				if want := []byte{tt.auth.Method()}; !slices.Equal(greeting.Methods, want) {
					return fmt.Errorf("offered methods %v want %v", greeting.Methods, want)
				}
				if (greeting.Credentials == nil) != (tt.auth == nil) {
					return fmt.Errorf("credentials %+v want %+v", greeting.Credentials, tt.auth)
				}

				req, err := ServerReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return fmt.Errorf("unexpected command: %d", req.Cmd)
				}
				if req.Address() != "mc.example:25565" {
					return fmt.Errorf("unexpected address: %s", req.Address())
				}

				return WriteSuccessReply(serverConn, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
			})

			if err := ClientDial(clientConn, tt.auth, "mc.example:25565"); err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientDialAuthRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := ServerNegotiate(serverConn, &Auth{Username: "user", Password: "right"})
		errc <- err
	}()

	err := ClientDial(clientConn, &Auth{Username: "user", Password: "wrong"}, "127.0.0.1:80")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("client err=%v want %v", err, ErrAuthFailed)
	}
	if err := <-errc; !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("server err=%v want %v", err, ErrAuthFailed)
	}
}

func TestClientDialNoAcceptableMethods(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = ServerNegotiate(serverConn, &Auth{Username: "user", Password: "pass"})
	}()

	err := ClientDial(clientConn, nil, "127.0.0.1:80")
	if !errors.Is(err, ErrNoAcceptableMethods) {
		t.Fatalf("err=%v want %v", err, ErrNoAcceptableMethods)
	}
}

func TestClientConnectRefused(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		if _, err := ServerNegotiate(serverConn, nil); err != nil {
			return
		}
		req, err := ServerReadRequest(serverConn)
		if err != nil {
			return
		}
		WriteConnectionRefusedReply(serverConn, req.Atyp)
	}()

	err := ClientDial(clientConn, nil, "127.0.0.1:80")
	var re *ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v want *ReplyError", err)
	}
	if re.Error() != "socks5: connection refused" {
		t.Fatalf("unexpected message %q", re.Error())
	}
}

func TestAuthValidate(t *testing.T) {
	long := strings.Repeat("u", 256)
	longest := strings.Repeat("u", 255)

	tests := []struct {
		name    string
		auth    *Auth
		wantErr bool
	}{
		{name: "nil"},
		{name: "max_length", auth: &Auth{Username: longest, Password: longest}},
		{name: "username_too_long", auth: &Auth{Username: long}, wantErr: true},
		{name: "password_too_long", auth: &Auth{Username: "user", Password: long}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrCredentialTooLong) {
				t.Fatalf("err=%v want %v", err, ErrCredentialTooLong)
			}
		})
	}
}

func TestClientDialRejectsOverlongCredentials(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	// Nothing may reach the proxy: a wrapped length byte would mis-frame
	// the request.
	got := make(chan int, 1)
	go func() {
		n, _ := serverConn.Read(make([]byte, 1))
		got <- n
	}()

	err := ClientDial(clientConn, &Auth{Username: strings.Repeat("u", 256)}, "127.0.0.1:80")
	if !errors.Is(err, ErrCredentialTooLong) {
		t.Fatalf("err=%v want %v", err, ErrCredentialTooLong)
	}

	_ = clientConn.Close()
	if n := <-got; n != 0 {
		t.Fatalf("client wrote %d bytes before rejecting credentials", n)
	}
}
