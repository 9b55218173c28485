// Package smtpprobe runs a single-shot SMTP conversation against a mail
// exchanger to test whether a candidate address is accepted, including a
// cheap catch-all discriminator. It never returns an error: remote
// rejections, transport failures and a rejected MAIL FROM are all reported
// as a types.SMTPVerificationResult. The configured sender address is not
// validated before use.
package smtpprobe

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

// Prober opens one plaintext SMTP conversation per Probe call.
type Prober struct {
	senderEmail string
	timeout     time.Duration
	logger      *zap.Logger

	// dial is overridden in tests to avoid a real TCP connection.
	dial func(network, address string, timeout time.Duration) (net.Conn, error)
}

// New builds a Prober. senderEmail is used as the MAIL FROM address;
// timeout applies to both connect and each command round-trip.
func New(senderEmail string, timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		senderEmail: senderEmail,
		timeout:     timeout,
		logger:      logger,
		dial:        net.DialTimeout,
	}
}

// Probe implements spec §4.4's state machine against mailServer.Exchange on
// port 25.
func (p *Prober) Probe(email, domain string, mailServer types.MailServer) types.SMTPVerificationResult {
	addr := net.JoinHostPort(mailServer.Exchange, "25")

	conn, err := p.dial("tcp", addr, p.timeout)
	if err != nil {
		return classifyConnError(err)
	}
	defer conn.Close()

	refreshDeadline := func() { conn.SetDeadline(time.Now().Add(p.timeout)) }
	refreshDeadline()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	// Server greeting.
	if _, _, err := readResponse(reader); err != nil {
		return classifyConnError(err)
	}

	refreshDeadline()
	if _, _, err := command(writer, reader, "EHLO localhost"); err != nil {
		return classifyConnError(err)
	}

	refreshDeadline()
	mailCode, mailMsg, err := command(writer, reader, fmt.Sprintf("MAIL FROM:<%s>", p.senderEmail))
	if err != nil {
		return classifyConnError(err)
	}
	if mailCode < 200 || mailCode >= 300 {
		p.logger.Debug("mail from rejected", zap.Int("code", mailCode), zap.String("message", mailMsg))
		return types.InconclusiveNoRetry("MAIL FROM rejected")
	}

	refreshDeadline()
	targetCode, targetMsg, err := command(writer, reader, fmt.Sprintf("RCPT TO:<%s>", email))
	if err != nil {
		return classifyConnError(err)
	}

	result := interpretTarget(targetCode, targetMsg)

	if isPositiveCompletion(targetCode) {
		refreshDeadline()
		isCatchAll := p.probeCatchAll(writer, reader, domain)
		result.IsCatchAll = isCatchAll
		if isCatchAll {
			result.ShouldRetry = true
			result.Exists = nil
			result.Message = "target accepted but domain is catch-all"
		}
	}

	refreshDeadline()
	_, _, _ = command(writer, reader, "QUIT")

	return result
}

// probeCatchAll issues a second RCPT TO for a random, almost-certainly-
// nonexistent local-part. Any error leaves catch-all indeterminate (false).
func (p *Prober) probeCatchAll(writer *bufio.Writer, reader *bufio.Reader, domain string) bool {
	randomLocal := fmt.Sprintf("no-reply-does-not-exist-%06d", randomSixDigits())
	code, _, err := command(writer, reader, fmt.Sprintf("RCPT TO:<%s@%s>", randomLocal, domain))
	if err != nil {
		return false
	}
	return isPositiveCompletion(code)
}

func randomSixDigits() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return 0
	}
	return n.Int64()
}

// interpretTarget implements the response-interpretation table for the
// RCPT TO target response (before the catch-all probe is layered on).
func interpretTarget(code int, message string) types.SMTPVerificationResult {
	switch {
	case isPositiveCompletion(code):
		return types.Conclusive(true, false, "target address accepted")
	case code >= 300 && code < 400:
		return types.InconclusiveRetry("intermediate response")
	case code >= 400 && code < 500:
		return types.InconclusiveRetry("temp failure / greylist")
	case code == 550 || code == 551 || code == 553 || matchesUserUnknown(message):
		return types.Conclusive(false, false, "user likely unknown")
	case code >= 500 && code < 600:
		return types.Conclusive(false, false, "policy/other")
	default:
		return types.InconclusiveRetry("unrecognised response")
	}
}

func isPositiveCompletion(code int) bool { return code >= 200 && code < 300 }

var userUnknownPhrases = []string{
	"unknown", "no such", "unavailable", "rejected", "doesn't exist",
	"disabled", "invalid address", "recipient not found", "user unknown",
	"mailbox unavailable",
}

func matchesUserUnknown(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range userUnknownPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// classifyConnError maps a transport-level error (connect, read, or write
// failure) into a verification result per spec §4.4's fixed classifier.
func classifyConnError(err error) types.SMTPVerificationResult {
	lower := strings.ToLower(err.Error())

	switch {
	case matchesUserUnknown(lower) && strings.Contains(lower, "550"):
		return types.Conclusive(false, false, "user likely unknown")
	case strings.Contains(lower, "refused"):
		return types.InconclusiveNoRetry("connection refused")
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "i/o timeout"):
		return types.InconclusiveRetry("connection timed out")
	case strings.Contains(lower, "reset"):
		return types.InconclusiveRetry("connection reset")
	case strings.Contains(lower, "tls"):
		return types.InconclusiveRetry("tls error")
	case strings.Contains(lower, "no route to host") || strings.Contains(lower, "network is unreachable"):
		return types.InconclusiveNoRetry("port 25 blocked")
	default:
		return types.InconclusiveRetry("unclassified transport error")
	}
}

// command writes one CRLF-terminated command and reads the response.
func command(writer *bufio.Writer, reader *bufio.Reader, cmd string) (int, string, error) {
	if _, err := writer.WriteString(cmd + "\r\n"); err != nil {
		return 0, "", err
	}
	if err := writer.Flush(); err != nil {
		return 0, "", err
	}
	return readResponse(reader)
}

// readResponse reads a (possibly multi-line) SMTP response and returns the
// status code and the final line's message.
func readResponse(reader *bufio.Reader) (int, string, error) {
	var code int
	var message string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return 0, "", fmt.Errorf("smtp: malformed response line %q", line)
		}
		c, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, "", fmt.Errorf("smtp: malformed status code %q", line)
		}
		code = c
		message = line[4:]
		if line[3] != '-' {
			break
		}
	}
	return code, message, nil
}
