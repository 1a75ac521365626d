package testutil

import (
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/miekg/dns"
)

// DNSServer is an in-process authoritative DNS server listening on the same
// loopback port over UDP and TCP. Answers are returned in the order records
// were added.
type DNSServer struct {
	Addr string

	mu       sync.Mutex
	records  map[string][]dns.RR
	rcodes   map[string]int
	truncate bool
	queries  []Query
}

// Query is a question received by a DNSServer and the transport it came
// over ("udp" or "tcp").
type Query struct {
	dns.Question
	Net string
}

// StartDNSServer starts a DNSServer on a loopback port. It is shut down when
// the test ends.
func StartDNSServer(t *testing.T) *DNSServer {
	t.Helper()

	pc, ln := listenUDPAndTCP(t)

	s := &DNSServer{
		Addr:    pc.LocalAddr().String(),
		records: make(map[string][]dns.RR),
		rcodes:  make(map[string]int),
	}

	for _, srv := range []*dns.Server{
		{PacketConn: pc, Handler: s},
		{Listener: ln, Handler: s},
	} {
		started := make(chan struct{})
		srv.NotifyStartedFunc = func() { close(started) }
		go func() { _ = srv.ActivateAndServe() }()
		<-started

		t.Cleanup(func() { _ = srv.Shutdown() })
	}

	return s
}

// listenUDPAndTCP binds UDP and TCP sockets on the same loopback port.
func listenUDPAndTCP(t *testing.T) (net.PacketConn, net.Listener) {
	t.Helper()

	var lastErr error
	for range 10 {
		pc, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ln, err := net.Listen("tcp", pc.LocalAddr().String())
		if err == nil {
			return pc, ln
		}
		_ = pc.Close()
		lastErr = err
	}
	t.Fatalf("no port free for both udp and tcp: %v", lastErr)
	return nil, nil
}

// SetTruncate makes UDP replies empty with the TC bit set, so clients must
// retry over TCP.
func (s *DNSServer) SetTruncate(truncate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate = truncate
}

// AddSRV adds an SRV record for name pointing at target.
func (s *DNSServer) AddSRV(name, target string, priority, port uint16) {
	name = dns.Fqdn(strings.ToLower(name))
	s.add(name, &dns.SRV{
		Hdr:      dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60},
		Priority: priority,
		Weight:   5,
		Port:     port,
		Target:   target,
	})
}

// AddA adds an A record for name.
func (s *DNSServer) AddA(name, ip string) {
	name = dns.Fqdn(strings.ToLower(name))
	s.add(name, &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.ParseIP(ip).To4(),
	})
}

// AddCNAME adds a CNAME record for name.
func (s *DNSServer) AddCNAME(name, target string) {
	name = dns.Fqdn(strings.ToLower(name))
	s.add(name, &dns.CNAME{
		Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 60},
		Target: dns.Fqdn(target),
	})
}

// SetRcode makes every query for name fail with rcode.
func (s *DNSServer) SetRcode(name string, rcode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcodes[dns.Fqdn(strings.ToLower(name))] = rcode
}

// Queries returns the questions received so far, in arrival order.
func (s *DNSServer) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

func (s *DNSServer) add(name string, rr dns.RR) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = append(s.records[name], rr)
}

func (s *DNSServer) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	network := "udp"
	if _, ok := w.RemoteAddr().(*net.TCPAddr); ok {
		network = "tcp"
	}

	s.mu.Lock()
	if s.truncate && network == "udp" {
		for _, q := range r.Question {
			s.queries = append(s.queries, Query{Question: q, Net: network})
		}
		s.mu.Unlock()

		m.Truncated = true
		_ = w.WriteMsg(m)
		return
	}

	for _, q := range r.Question {
		s.queries = append(s.queries, Query{Question: q, Net: network})

		name := strings.ToLower(q.Name)
		if rc, ok := s.rcodes[name]; ok {
			m.Rcode = rc
			continue
		}

		rrs, ok := s.records[name]
		if !ok {
			m.Rcode = dns.RcodeNameError
			continue
		}
		for _, rr := range rrs {
			// CNAMEs accompany every answer for their owner name.
			if t := rr.Header().Rrtype; t == q.Qtype || t == dns.TypeCNAME {
				m.Answer = append(m.Answer, rr)
			}
		}
	}
	s.mu.Unlock()

	_ = w.WriteMsg(m)
}
