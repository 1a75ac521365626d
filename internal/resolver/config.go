package resolver

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is where SystemServers looks by default.
const DefaultResolvConf = "/etc/resolv.conf"

type Config struct {
	// Servers are DNS servers as host:port, tried in order.
	Servers []string
	// Timeout bounds each individual exchange with a server.
	Timeout time.Duration
}

// SystemServers returns the nameservers listed in a resolv.conf file.
func SystemServers(resolvConf string) ([]string, error) {
	cc, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolvConf, err)
	}
	if len(cc.Servers) == 0 {
		return nil, fmt.Errorf("%s: no nameservers", resolvConf)
	}

	servers := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		servers = append(servers, net.JoinHostPort(s, cc.Port))
	}
	return servers, nil
}

// ServerAddr normalizes a DNS server given as host or host:port, applying
// port 53 when none is given.
func ServerAddr(s string) (string, error) {
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s, nil
	}

	host := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if host == "" {
		return "", errors.New("empty DNS server address")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("invalid DNS server address %q", s)
	}
	return net.JoinHostPort(host, "53"), nil
}
