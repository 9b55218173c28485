// Package dnsresolve resolves a domain's preferred mail exchanger, falling
// back to its A record, then its AAAA record, when no MX records exist. It talks to a configured
// list of recursive resolvers directly via github.com/miekg/dns rather than
// the system resolver, because spec compliance requires targeting specific
// servers with a fixed per-query timeout and attempt budget.
package dnsresolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

// Resolver resolves mail servers for a domain against a fixed set of
// recursive servers. It is safe for concurrent use; it holds no mutable
// state after construction.
type Resolver struct {
	servers  []string
	timeout  time.Duration
	attempts int
	client   *dns.Client
	logger   *zap.Logger

	// exchange is the low-level query hook; overridden in tests so the
	// resolver's retry/fallback logic can be exercised without a live
	// DNS server, matching the injectable-lookup idiom used elsewhere
	// in this codebase's collaborators.
	exchange func(ctx context.Context, msg *dns.Msg, server string, net string) (*dns.Msg, error)
}

// New builds a Resolver. servers are "host:port" or bare host (port 53 is
// assumed); timeout applies per query attempt; attempts is the retry bound
// per record type (spec requires 2).
func New(servers []string, timeout time.Duration, attempts int, logger *zap.Logger) *Resolver {
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if !strings.Contains(s, ":") {
			s = s + ":53"
		}
		normalized = append(normalized, s)
	}
	if attempts < 1 {
		attempts = 1
	}
	r := &Resolver{
		servers:  normalized,
		timeout:  timeout,
		attempts: attempts,
		client:   &dns.Client{Timeout: timeout, Net: "udp"},
		logger:   logger,
	}
	r.exchange = r.defaultExchange
	return r
}

func (r *Resolver) defaultExchange(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
	client := r.client
	if net == "tcp" {
		client = &dns.Client{Net: "tcp", Timeout: r.timeout}
	}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	return resp, err
}

// ResolveMailServer implements spec §4.2: prefer the lowest-preference MX
// record, falling back to an A record, then an AAAA record, when no MX
// exists.
func (r *Resolver) ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error) {
	fqdn := dns.Fqdn(domain)

	mxRecords, err := r.query(ctx, fqdn, dns.TypeMX)
	if err == nil {
		if ms, ok := bestMX(mxRecords); ok {
			return ms, nil
		}
		// No error but no usable records: fall through to A lookup.
	} else if !isNoData(err) {
		if isNXDomain(err) {
			return types.MailServer{}, fmt.Errorf("resolving MX for %s: %w", domain, types.ErrNxDomain)
		}
		if isTimeout(err) {
			return types.MailServer{}, fmt.Errorf("resolving MX for %s: %w", domain, types.ErrDNSTimeout)
		}
		r.logger.Debug("mx lookup failed, falling back to A record", zap.String("domain", domain), zap.Error(err))
	}

	aRecords, err := r.query(ctx, fqdn, dns.TypeA)
	if err == nil {
		for _, rr := range aRecords {
			if a, ok := rr.(*dns.A); ok {
				return types.MailServer{Exchange: a.A.String(), Preference: types.PreferenceARecordFallback}, nil
			}
		}
		// No error but no usable records: fall through to AAAA lookup.
	} else if !isNoData(err) {
		if isNXDomain(err) {
			return types.MailServer{}, fmt.Errorf("resolving A for %s: %w", domain, types.ErrNxDomain)
		}
		if isTimeout(err) {
			return types.MailServer{}, fmt.Errorf("resolving A for %s: %w", domain, types.ErrDNSTimeout)
		}
		r.logger.Debug("a lookup failed, falling back to AAAA record", zap.String("domain", domain), zap.Error(err))
	}

	aaaaRecords, err := r.query(ctx, fqdn, dns.TypeAAAA)
	if err != nil {
		if isNXDomain(err) {
			return types.MailServer{}, fmt.Errorf("resolving AAAA for %s: %w", domain, types.ErrNxDomain)
		}
		if isTimeout(err) {
			return types.MailServer{}, fmt.Errorf("resolving AAAA for %s: %w", domain, types.ErrDNSTimeout)
		}
		if !isNoData(err) {
			return types.MailServer{}, fmt.Errorf("resolving AAAA for %s: %w", domain, err)
		}
	}

	for _, rr := range aaaaRecords {
		if aaaa, ok := rr.(*dns.AAAA); ok {
			return types.MailServer{Exchange: aaaa.AAAA.String(), Preference: types.PreferenceARecordFallback}, nil
		}
	}

	return types.MailServer{}, fmt.Errorf("resolving %s: %w", domain, types.ErrNoDNSRecords)
}

// bestMX picks the MX record with the minimum preference, ties broken by
// first-seen order, stripping the trailing dot and rejecting an empty
// exchange.
func bestMX(records []dns.RR) (types.MailServer, bool) {
	var best *dns.MX
	for _, rr := range records {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		if best == nil || mx.Preference < best.Preference {
			best = mx
		}
	}
	if best == nil {
		return types.MailServer{}, false
	}
	exchange := strings.TrimSuffix(best.Mx, ".")
	if exchange == "" {
		return types.MailServer{}, false
	}
	return types.MailServer{Exchange: exchange, Preference: best.Preference}, true
}

// query runs up to r.attempts tries of qtype against the configured
// servers, trying UDP then TCP fallback on truncation, and returns the
// answer section.
func (r *Resolver) query(ctx context.Context, fqdn string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		for _, server := range r.servers {
			resp, err := r.exchange(ctx, msg, server, "udp")
			if err != nil {
				lastErr = err
				continue
			}
			if resp.Truncated {
				resp, err = r.exchange(ctx, msg, server, "tcp")
				if err != nil {
					lastErr = err
					continue
				}
			}
			switch resp.Rcode {
			case dns.RcodeSuccess:
				return resp.Answer, nil
			case dns.RcodeNameError:
				return nil, errNXDomain
			default:
				lastErr = fmt.Errorf("dns: server %s returned rcode %s", server, dns.RcodeToString[resp.Rcode])
			}
		}
	}
	if lastErr == nil {
		return nil, errNoData
	}
	return nil, lastErr
}

var (
	errNXDomain = fmt.Errorf("nxdomain")
	errNoData   = fmt.Errorf("no data")
)

func isNXDomain(err error) bool { return err == errNXDomain }
func isNoData(err error) bool   { return err == errNoData }

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout") ||
		strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}
