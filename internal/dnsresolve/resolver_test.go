package dnsresolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

func testResolver(t *testing.T, exchange func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error)) *Resolver {
	t.Helper()
	r := New([]string{"8.8.8.8"}, time.Second, 2, zap.NewNop())
	r.exchange = exchange
	return r
}

func answer(rrs ...dns.RR) *dns.Msg {
	m := new(dns.Msg)
	m.Rcode = dns.RcodeSuccess
	m.Answer = rrs
	return m
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestResolveMailServerPicksLowestPreference(t *testing.T) {
	mx1 := mustRR(t, "example.com. 300 IN MX 20 mx2.example.com.")
	mx2 := mustRR(t, "example.com. 300 IN MX 10 mx1.example.com.")

	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		if msg.Question[0].Qtype == dns.TypeMX {
			return answer(mx1, mx2), nil
		}
		return nil, errors.New("should not query A")
	})

	ms, err := r.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, types.MailServer{Exchange: "mx1.example.com", Preference: 10}, ms)
}

func TestResolveMailServerFallsBackToARecord(t *testing.T) {
	a := mustRR(t, "example.com. 300 IN A 93.184.216.34")

	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		switch msg.Question[0].Qtype {
		case dns.TypeMX:
			return answer(), nil // success, no records
		case dns.TypeA:
			return answer(a), nil
		}
		return nil, errors.New("unexpected qtype")
	})

	ms, err := r.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "93.184.216.34", ms.Exchange)
	assert.Equal(t, types.PreferenceARecordFallback, ms.Preference)
}

func TestResolveMailServerFallsBackToAAAARecord(t *testing.T) {
	aaaa := mustRR(t, "example.com. 300 IN AAAA 2606:2800:220:1:248:1893:25c8:1946")

	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		switch msg.Question[0].Qtype {
		case dns.TypeMX:
			return answer(), nil // success, no records
		case dns.TypeA:
			return answer(), nil // success, no records: IPv4-only resolver would give up here
		case dns.TypeAAAA:
			return answer(aaaa), nil
		}
		return nil, errors.New("unexpected qtype")
	})

	ms, err := r.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "2606:2800:220:1:248:1893:25c8:1946", ms.Exchange)
	assert.Equal(t, types.PreferenceARecordFallback, ms.Preference)
}

func TestResolveMailServerNXDomain(t *testing.T) {
	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		m := new(dns.Msg)
		m.Rcode = dns.RcodeNameError
		return m, nil
	})

	_, err := r.ResolveMailServer(context.Background(), "nxdomain.test")
	assert.ErrorIs(t, err, types.ErrNxDomain)
}

func TestResolveMailServerNoRecords(t *testing.T) {
	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		return answer(), nil
	})

	_, err := r.ResolveMailServer(context.Background(), "norecords.test")
	assert.ErrorIs(t, err, types.ErrNoDNSRecords)
}

func TestResolveMailServerTimeout(t *testing.T) {
	r := testResolver(t, func(ctx context.Context, msg *dns.Msg, server, net string) (*dns.Msg, error) {
		return nil, timeoutError{}
	})

	_, err := r.ResolveMailServer(context.Background(), "slow.test")
	assert.ErrorIs(t, err, types.ErrDNSTimeout)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
