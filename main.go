package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/mcproxy/internal/dialer"
	"github.com/die-net/mcproxy/internal/proxy"
	"github.com/die-net/mcproxy/internal/resolver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server    = pflag.String("server", "", "Minecraft server domain to forward to; resolved via SRV, then A, on every connection")
		proxyAddr = pflag.String("proxy", defaultProxy(), "SOCKS5 proxy: host:port | socks5://[user[:pass]@]host[:port]")
		username  = pflag.String("username", "", "SOCKS5 proxy username. If only --password is given, an empty username is sent")
		password  = pflag.String("password", "", "SOCKS5 proxy password. If only --username is given, an empty password is sent")
		listen    = pflag.String("listen", "0.0.0.0:1337", "Listen address for game clients")

		dnsServer          = pflag.String("dns-server", "", "DNS server host[:port]. Empty uses the nameservers in "+resolver.DefaultResolvConf)
		dnsTimeout         = pflag.Duration("dns-timeout", 5*time.Second, "Timeout for each DNS exchange")
		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for TCP connect to the SOCKS5 proxy")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for the SOCKS5 handshake")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort          = pflag.Bool("reuse-port", false, "Set SO_REUSEPORT on the listening socket")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection debug logging")
		logJSON            = pflag.Bool("log-json", false, "Log JSON instead of human-readable text")
	)

	if !proxy.ReusePortSupported {
		_ = pflag.CommandLine.MarkHidden("reuse-port")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger := newLogger(os.Stderr, *logJSON, *verbose)

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if *server == "" {
		return errors.New("--server is required")
	}
	if *proxyAddr == "" {
		return errors.New("--proxy is required (or set ALL_PROXY)")
	}

	servers, err := dnsServers(*dnsServer)
	if err != nil {
		return fmt.Errorf("invalid --dns-server: %w", err)
	}
	res, err := resolver.New(resolver.Config{Servers: servers, Timeout: *dnsTimeout})
	if err != nil {
		return err
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
	}

	d, err := dialer.New(dialCfg, *proxyAddr, optionalFlag("username", *username), optionalFlag("password", *password))
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info().Str("listen", *debugListen).Msg("debug listening")
	}

	ln, err := proxy.ListenTCP("tcp", *listen, proxy.ListenConfig{KeepAlive: ka, ReusePort: *reusePort})
	if err != nil {
		return err
	}
	srv := proxy.NewServer(ctx, proxy.Config{
		Domain:   *server,
		Resolver: res,
		Dialer:   d,
		Logger:   logger,
	})
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})

	logListening(logger, ln.Addr(), *server, d)

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info().Msg("shutting down")
	return err
}

func newLogger(w io.Writer, jsonOutput, verbose bool) zerolog.Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// logListening logs the startup banner. Sessions log "forwarding"
// individually, so this uses a distinct message.
func logListening(logger zerolog.Logger, addr net.Addr, domain string, d *dialer.SOCKS5ProxyDialer) {
	logger.Info().
		Str("listen", addr.String()).
		Str("domain", domain).
		Str("proxy", d.ProxyAddr()).
		Bool("auth", d.Auth() != nil).
		Msg("listening")
}

// optionalFlag returns &value only if the flag was given on the command line,
// so an explicitly empty value is distinguishable from an absent one.
func optionalFlag(name, value string) *string {
	if !pflag.CommandLine.Changed(name) {
		return nil
	}
	return &value
}

func dnsServers(s string) ([]string, error) {
	if s == "" {
		return resolver.SystemServers(resolver.DefaultResolvConf)
	}

	addr, err := resolver.ServerAddr(s)
	if err != nil {
		return nil, err
	}
	return []string{addr}, nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultProxy() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return ""
}
