package smtpprobe

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

// fakeServer runs script against one side of a net.Pipe, replying with the
// scripted response to each command it reads, in order.
func fakeServer(t *testing.T, conn net.Conn, greeting string, responses []string) {
	t.Helper()
	go func() {
		writer := bufio.NewWriter(conn)
		writer.WriteString(greeting + "\r\n")
		writer.Flush()

		reader := bufio.NewReader(conn)
		for _, resp := range responses {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			writer.WriteString(resp + "\r\n")
			writer.Flush()
		}
	}()
}

func newTestProber(t *testing.T, greeting string, responses []string) *Prober {
	t.Helper()
	client, server := net.Pipe()
	fakeServer(t, server, greeting, responses)

	p := New("verify@example.com", time.Second, zap.NewNop())
	p.dial = func(network, address string, timeout time.Duration) (net.Conn, error) {
		return client, nil
	}
	return p
}

func TestProbeAcceptedNotCatchAll(t *testing.T) {
	p := newTestProber(t, "220 mx.example.com ESMTP", []string{
		"250 mx.example.com",          // EHLO
		"250 OK",                      // MAIL FROM
		"250 OK",                      // RCPT TO target
		"550 no such user",            // RCPT TO random -> not catch-all
		"221 bye",                     // QUIT
	})

	result := p.Probe("jane.doe@example.com", "example.com", types.MailServer{Exchange: "mx.example.com"})
	require.NotNil(t, result.Exists)
	assert.True(t, *result.Exists)
	assert.False(t, result.IsCatchAll)
}

func TestProbeCatchAllMakesInconclusive(t *testing.T) {
	p := newTestProber(t, "220 mx.example.com ESMTP", []string{
		"250 mx.example.com",
		"250 OK",
		"250 OK", // target accepted
		"250 OK", // random accepted too -> catch-all
		"221 bye",
	})

	result := p.Probe("contact@example.com", "example.com", types.MailServer{Exchange: "mx.example.com"})
	assert.Nil(t, result.Exists)
	assert.True(t, result.IsCatchAll)
	assert.True(t, result.ShouldRetry)
}

func TestProbeUserUnknown(t *testing.T) {
	p := newTestProber(t, "220 mx.example.com ESMTP", []string{
		"250 mx.example.com",
		"250 OK",
		"550 5.1.1 user unknown",
		"221 bye",
	})

	result := p.Probe("nope@example.com", "example.com", types.MailServer{Exchange: "mx.example.com"})
	require.NotNil(t, result.Exists)
	assert.False(t, *result.Exists)
	assert.Equal(t, "user likely unknown", result.Message)
}

func TestProbeMailFromRejected(t *testing.T) {
	p := newTestProber(t, "220 mx.example.com ESMTP", []string{
		"250 mx.example.com",
		"550 sender rejected",
	})

	result := p.Probe("someone@example.com", "example.com", types.MailServer{Exchange: "mx.example.com"})
	assert.Nil(t, result.Exists)
	assert.False(t, result.ShouldRetry)
	assert.Equal(t, "MAIL FROM rejected", result.Message)
}

func TestProbeTransientFailure(t *testing.T) {
	p := newTestProber(t, "220 mx.example.com ESMTP", []string{
		"250 mx.example.com",
		"250 OK",
		"450 mailbox busy",
		"221 bye",
	})

	result := p.Probe("someone@example.com", "example.com", types.MailServer{Exchange: "mx.example.com"})
	assert.Nil(t, result.Exists)
	assert.True(t, result.ShouldRetry)
}

func TestClassifyConnErrorConnectionRefused(t *testing.T) {
	result := classifyConnError(&net.OpError{Op: "dial", Err: dummyErr("connection refused")})
	assert.False(t, result.ShouldRetry)
	assert.Equal(t, "connection refused", result.Message)
}

type dummyErr string

func (d dummyErr) Error() string { return string(d) }

func TestMatchesUserUnknown(t *testing.T) {
	assert.True(t, matchesUserUnknown("Mailbox Unavailable"))
	assert.True(t, matchesUserUnknown(strings.ToUpper("no such user")))
	assert.False(t, matchesUserUnknown("ok"))
}
