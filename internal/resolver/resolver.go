package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

const (
	// Port is paired with every resolved host, whatever port the SRV
	// record advertises.
	Port = 25565

	srvPrefix = "_minecraft._tcp."
)

// ErrNoRecordFound means the domain has neither a usable SRV record nor an A
// record.
var ErrNoRecordFound = errors.New("no record found")

// ResolutionError is a DNS transport or protocol failure, as opposed to a
// definitive answer that no records exist.
type ResolutionError struct {
	Domain string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Domain, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver looks up targets with SRV-then-A semantics.
type Resolver struct {
	servers []string
	udp     *dns.Client
	tcp     *dns.Client
}

func New(cfg Config) (*Resolver, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no DNS servers configured")
	}

	return &Resolver{
		servers: append([]string(nil), cfg.Servers...),
		udp:     &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
	}, nil
}

// Resolve returns host:port for domain. The SRV record wins when one exists
// and the A lookup is skipped; otherwise the first A record is used.
func (r *Resolver) Resolve(ctx context.Context, domain string) (string, error) {
	host, err := r.lookupSRV(ctx, domain)
	if err != nil {
		return "", &ResolutionError{Domain: domain, Err: err}
	}

	if host == "" {
		host, err = r.lookupA(ctx, domain)
		if err != nil {
			return "", &ResolutionError{Domain: domain, Err: err}
		}
	}

	if host == "" {
		return "", fmt.Errorf("%s: %w", domain, ErrNoRecordFound)
	}

	return net.JoinHostPort(host, strconv.Itoa(Port)), nil
}

func (r *Resolver) lookupSRV(ctx context.Context, domain string) (string, error) {
	rrs, err := r.query(ctx, srvPrefix+dns.Fqdn(domain), dns.TypeSRV)
	if err != nil || len(rrs) == 0 {
		return "", err
	}

	// A target of "." means the service is explicitly unavailable.
	return strings.TrimSuffix(rrs[0].(*dns.SRV).Target, "."), nil
}

func (r *Resolver) lookupA(ctx context.Context, domain string) (string, error) {
	rrs, err := r.query(ctx, dns.Fqdn(domain), dns.TypeA)
	if err != nil || len(rrs) == 0 {
		return "", err
	}

	return rrs[0].(*dns.A).A.String(), nil
}

// query asks each server in turn and returns the answer records of type
// qtype in wire order. NXDOMAIN and empty NOERROR answers yield no records
// and no error.
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.udp.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			in, _, err = r.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			lastErr = fmt.Errorf("%s %s via %s: %w", dns.TypeToString[qtype], name, server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch in.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
		default:
			lastErr = fmt.Errorf("%s %s via %s: %s", dns.TypeToString[qtype], name, server, dns.RcodeToString[in.Rcode])
			continue
		}

		var rrs []dns.RR
		for _, rr := range in.Answer {
			if rr.Header().Rrtype == qtype {
				rrs = append(rrs, rr)
			}
		}
		return rrs, nil
	}

	return nil, lastErr
}
