package recon

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Resolver looks up addresses and canonical names. *net.Resolver satisfies
// it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// Prober performs the per-host network calls. It is safe for concurrent use;
// all calls share one rate limiter.
type Prober struct {
	resolver  Resolver
	client    *http.Client
	dialer    *net.Dialer
	tlsConfig *tls.Config
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
	address   func(host string) string
	logger    *zap.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) ProberOption {
	return func(p *Prober) { p.resolver = r }
}

// WithTimeout sets the per-call timeout (default 4s).
func WithTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ProberOption {
	return func(p *Prober) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithRateLimit allows r calls per second with the given burst across all
// hosts. The default is 5 per second, burst 1.
func WithRateLimit(r rate.Limit, burst int) ProberOption {
	return func(p *Prober) {
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(r, burst)
	}
}

// WithTLSConfig sets the base TLS configuration for HTTPS and TLS peeks.
func WithTLSConfig(cfg *tls.Config) ProberOption {
	return func(p *Prober) { p.tlsConfig = cfg }
}

// WithAddress maps a host to the address dialed for it. The default is
// host:443.
func WithAddress(fn func(host string) string) ProberOption {
	return func(p *Prober) { p.address = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber returns a prober with the given options applied.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		resolver:  net.DefaultResolver,
		limiter:   rate.NewLimiter(5, 1),
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		address:   func(host string) string { return net.JoinHostPort(host, "443") },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dialer = &net.Dialer{Timeout: p.timeout}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			return p.dialer.DialContext(ctx, network, p.address(host))
		},
		TLSClientConfig:     p.tlsConfig.Clone(),
		TLSHandshakeTimeout: p.timeout,
		DisableKeepAlives:   true,
	}
	p.client = &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return p
}

// UserAgent returns the User-Agent sent with requests.
func (p *Prober) UserAgent() string { return p.userAgent }

func (p *Prober) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Resolve returns the sorted addresses of host and its canonical name. Lookup
// failures are expected for absent subdomains and yield empty results.
func (p *Prober) Resolve(ctx context.Context, host string) ([]string, string) {
	if err := p.wait(ctx); err != nil {
		return []string{}, ""
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ips := []string{}
	if addrs, err := p.resolver.LookupHost(ctx, host); err == nil {
		seen := map[string]struct{}{}
		for _, a := range addrs {
			if _, dup := seen[a]; !dup {
				seen[a] = struct{}{}
				ips = append(ips, a)
			}
		}
		sort.Strings(ips)
	} else {
		p.logger.Debug("lookup failed", zap.String("host", host), zap.Error(err))
	}

	cname := ""
	if c, err := p.resolver.LookupCNAME(ctx, host); err == nil {
		cname = strings.TrimSuffix(c, ".")
	}
	return ips, cname
}

// Head sends one HTTPS HEAD request for "/" and returns lowercased headers and
// notes: "status:N" on a response, "error:<Kind>" otherwise. Headers are not
// sanitized here.
func (p *Prober) Head(ctx context.Context, host string) (map[string]string, []string) {
	headers := map[string]string{}
	if err := p.wait(ctx); err != nil {
		return headers, []string{"error:RateLimited"}
	}

	resp, err := p.do(ctx, http.MethodHead, host, "/")
	if err != nil {
		return headers, []string{"error:" + errorKind(err)}
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return headers, []string{fmt.Sprintf("status:%d", resp.StatusCode)}
}

// Robots fetches /robots.txt and returns "robots:yes", "robots:no" or
// "robots:error:<kind>", followed by one "sitemap:<url>" note per sitemap
// directive. At most MaxRobotsSize bytes are read.
func (p *Prober) Robots(ctx context.Context, host string) []string {
	if err := p.wait(ctx); err != nil {
		return []string{"robots:error:rate_limited"}
	}
	resp, err := p.do(ctx, http.MethodGet, host, "/robots.txt")
	if err != nil {
		return []string{"robots:error:" + strings.ToLower(strings.TrimSuffix(errorKind(err), "Error"))}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return []string{"robots:no"}
	}
	notes := []string{"robots:yes"}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRobotsSize))
	if err != nil {
		return notes
	}
	for _, sm := range ParseRobots(string(body)).Sitemaps {
		notes = append(notes, "sitemap:"+sm)
	}
	return notes
}

func (p *Prober) do(ctx context.Context, method, host, path string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	req, err := http.NewRequestWithContext(ctx, method, "https://"+host+path, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// TLSPeek completes a handshake and reports the negotiated ALPN protocol and
// the leaf certificate's DNS SANs. Connection failures give an empty TLSInfo;
// handshake failures set Error to "SSLError".
func (p *Prober) TLSPeek(ctx context.Context, host string) TLSInfo {
	info := TLSInfo{ALPN: []string{}, SAN: []string{}}
	if err := p.wait(ctx); err != nil {
		return info
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg := p.tlsConfig.Clone()
	cfg.ServerName = host
	cfg.NextProtos = []string{"h2", "http/1.1"}
	d := &tls.Dialer{NetDialer: p.dialer, Config: cfg}

	conn, err := d.DialContext(ctx, "tcp", p.address(host))
	if err != nil {
		if isTLSError(err) {
			info.Error = "SSLError"
		}
		return info
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if state.NegotiatedProtocol != "" {
		info.ALPN = append(info.ALPN, state.NegotiatedProtocol)
	}
	if len(state.PeerCertificates) > 0 {
		info.SAN = append(info.SAN, state.PeerCertificates[0].DNSNames...)
	}
	return info
}

// RelatedHosts returns the SANs of info other than host and wildcards.
func RelatedHosts(host string, info TLSInfo) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range info.SAN {
		if s == host || strings.HasPrefix(s, "*.") {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// errorKind names an error for notes.
func errorKind(err error) string {
	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "TimeoutError"
	case isTLSError(err):
		return "SSLError"
	case errors.As(err, &dnsErr):
		return "DNSError"
	case errors.As(err, &opErr):
		return "ConnectionError"
	case errors.Is(err, context.Canceled):
		return "CancelledError"
	default:
		return "HTTPError"
	}
}

func isTLSError(err error) bool {
	var (
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &alertErr) ||
		errors.As(err, &authErr) || errors.As(err, &hostErr) || errors.As(err, &invalidErr)
}

// Robots is a parsed robots.txt.
type Robots struct {
	// Rules maps a user agent to its allow and disallow paths.
	Rules      map[string]RobotsRules `json:"user_agents"`
	Sitemaps   []string               `json:"sitemaps"`
	CrawlDelay *float64               `json:"crawl_delay"`
}

// RobotsRules are the path rules for one user agent.
type RobotsRules struct {
	Allow    []string `json:"allow"`
	Disallow []string `json:"disallow"`
}

// ParseRobots parses robots.txt content. Comments, blank lines and lines
// without a colon are ignored; rules before any User-agent line apply to "*".
func ParseRobots(content string) Robots {
	r := Robots{Rules: map[string]RobotsRules{}, Sitemaps: []string{}}
	agent := "*"

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "user-agent":
			agent = value
			if _, exists := r.Rules[agent]; !exists {
				r.Rules[agent] = RobotsRules{Allow: []string{}, Disallow: []string{}}
			}
		case "allow":
			rules := r.rules(agent)
			rules.Allow = append(rules.Allow, value)
			r.Rules[agent] = rules
		case "disallow":
			rules := r.rules(agent)
			rules.Disallow = append(rules.Disallow, value)
			r.Rules[agent] = rules
		case "sitemap":
			r.Sitemaps = append(r.Sitemaps, value)
		case "crawl-delay":
			var d float64
			if _, err := fmt.Sscanf(value, "%g", &d); err == nil {
				r.CrawlDelay = &d
			}
		}
	}
	return r
}

func (r Robots) rules(agent string) RobotsRules {
	rules, ok := r.Rules[agent]
	if !ok {
		return RobotsRules{Allow: []string{}, Disallow: []string{}}
	}
	return rules
}
