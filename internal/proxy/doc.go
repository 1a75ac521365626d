// Package proxy implements the mcproxy listener side.
//
// Server accepts plain TCP connections and, for each one, resolves the
// configured domain, tunnels to the result through the upstream dialer and
// relays bytes in both directions. Sessions share no mutable state; a failure
// in one is logged and never affects the accept loop or other sessions.
package proxy
