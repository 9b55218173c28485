// Package verify wraps an SMTP prober with the bounded retry policy spec
// §4.5 describes: retry on retriable-inconclusive outcomes, stop on the
// first conclusive result or a non-retriable inconclusive one.
package verify

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

// Prober is the collaborator verify wraps; satisfied by *smtpprobe.Prober.
type Prober interface {
	Probe(email, domain string, mailServer types.MailServer) types.SMTPVerificationResult
}

// Verifier retries a Prober up to a configured attempt bound, sleeping a
// random duration between attempts.
type Verifier struct {
	prober      Prober
	maxAttempts int
	minSleep    time.Duration
	maxSleep    time.Duration
	logger      *zap.Logger
}

// New builds a Verifier. maxAttempts is typically 2; minSleep/maxSleep
// bound the random inter-attempt delay.
func New(prober Prober, maxAttempts int, minSleep, maxSleep time.Duration, logger *zap.Logger) *Verifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Verifier{prober: prober, maxAttempts: maxAttempts, minSleep: minSleep, maxSleep: maxSleep, logger: logger}
}

// Verify runs the retry loop and returns the final status/message along
// with the wall-clock time spent, which the scorer records in the
// verification log.
func (v *Verifier) Verify(ctx context.Context, email, domain string, mailServer types.MailServer) (types.SMTPVerificationResult, time.Duration) {
	start := time.Now()
	var result types.SMTPVerificationResult

	for attempt := 0; attempt < v.maxAttempts; attempt++ {
		result = v.prober.Probe(email, domain, mailServer)

		if result.Exists != nil {
			return result, time.Since(start)
		}
		if !result.ShouldRetry {
			return result, time.Since(start)
		}
		if attempt == v.maxAttempts-1 {
			break
		}

		v.logger.Debug("smtp verification inconclusive, retrying", zap.String("email", email), zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return result, time.Since(start)
		case <-time.After(v.randomSleep()):
		}
	}

	return result, time.Since(start)
}

func (v *Verifier) randomSleep() time.Duration {
	if v.maxSleep <= v.minSleep {
		return v.minSleep
	}
	delta := v.maxSleep - v.minSleep
	return v.minSleep + time.Duration(rand.Int63n(int64(delta)))
}
