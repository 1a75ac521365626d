package dialer

// Package dialer provides the outbound side of mcproxy.
//
// Dialers implement a small interface (DialContext) used by the proxy server
// to reach the resolved target through an upstream SOCKS5 proxy.
