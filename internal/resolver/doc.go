// Package resolver turns a server domain into the host:port mcproxy dials.
//
// It queries the game's SRV record (_minecraft._tcp.<domain>) and falls back
// to the domain's A record. Records are taken in the order the DNS server
// returned them; nothing is cached between calls.
package resolver
