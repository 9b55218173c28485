// Package score implements spec §4.6: feature derivation, confidence
// arithmetic, the SMTP gate, sorting, and selection. It is the only
// package that decides which candidate, if any, becomes the most likely
// email.
package score

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

// Verifier is the collaborator the SMTP gate calls; satisfied by
// *verify.Verifier.
type Verifier interface {
	Verify(ctx context.Context, email, domain string, mailServer types.MailServer) (types.SMTPVerificationResult, time.Duration)
}

// Config carries the tunables spec §4.6 and §6 name explicitly.
type Config struct {
	GenericPrefixes            map[string]bool
	ConfidenceThreshold        uint8
	GenericConfidenceThreshold uint8
	MaxAlternatives            int
	MinSleep                   time.Duration
	MaxSleep                   time.Duration
}

// IsGeneric reports whether local (lowercased) is a configured generic
// prefix. Exported so the engine can apply the same test when filtering
// scraped addresses before merge (spec §4.7 step 2).
func IsGeneric(local string, genericPrefixes map[string]bool) bool {
	return genericPrefixes[strings.ToLower(local)]
}

// Result is everything Process derives for one invocation's candidate set.
type Result struct {
	EmailResult types.EmailResult
	UsedSMTP    bool
}

// Process scores every candidate, applies the SMTP gate where eligible,
// sorts, and selects a winner. candidates must already be in the merge
// order from spec §4.7(3); sleeper is called between SMTP-verified
// candidates for adaptive backpressure (nil disables the sleep, used in
// tests).
func Process(
	ctx context.Context,
	candidates []types.Candidate,
	firstName, lastName, domain string,
	mailServer *types.MailServer,
	verifier Verifier,
	cfg Config,
	logger *zap.Logger,
	sleeper func(time.Duration),
) Result {
	firstLower := strings.ToLower(firstName)
	lastLower := strings.ToLower(lastName)

	verificationLog := make(map[string]string)
	found := make([]types.FoundEmailData, 0, len(candidates))
	usedSMTP := false

	for _, c := range candidates {
		local, host, ok := splitEmail(c.Email)
		if !ok {
			continue
		}

		isGeneric := IsGeneric(local, cfg.GenericPrefixes)
		matchesPrimary := strings.EqualFold(host, domain)
		nameInEmail := (firstLower != "" && strings.Contains(local, firstLower)) ||
			(lastLower != "" && strings.Contains(local, lastLower))

		if !matchesPrimary && !(c.FromScrape && isGeneric) {
			continue
		}

		confidence := baseConfidence(c, nameInEmail, matchesPrimary)
		confidence = applyGenericPenalty(confidence, isGeneric, nameInEmail)

		var verificationStatus *bool
		verificationMessage := ""

		if mailServer != nil && verifier != nil && eligibleForSMTP(confidence, c, nameInEmail) {
			usedSMTP = true
			vr, elapsed := verifier.Verify(ctx, c.Email, domain, *mailServer)
			verificationStatus = vr.Exists
			verificationMessage = vr.Message

			switch {
			case vr.Exists != nil && *vr.Exists:
				confidence += 5
			case vr.Exists != nil && !*vr.Exists:
				confidence = 0
			default:
				confidence++
			}

			verificationLog[c.Email] = fmt.Sprintf("%s (%.2fs)", vr.Message, elapsed.Seconds())
			logger.Debug("smtp verification recorded", zap.String("email", c.Email), zap.String("message", vr.Message), zap.Duration("elapsed", elapsed))

			if sleeper != nil {
				sleeper(adaptiveSleep(cfg.MinSleep, cfg.MaxSleep, elapsed))
			}
		} else if mailServer == nil {
			verificationLog[c.Email] = "Verification skipped (DNS lookup failed)"
		} else {
			verificationLog[c.Email] = "Verification skipped (low initial confidence)"
		}

		confidence = clamp(confidence, 0, 10)
		if confidence == 0 {
			continue
		}

		source := "pattern"
		if c.FromScrape {
			source = "scraped"
		}

		found = append(found, types.FoundEmailData{
			Email:               c.Email,
			Confidence:          confidence,
			Source:              source,
			IsGeneric:           isGeneric,
			VerificationStatus:  verificationStatus,
			VerificationMessage: verificationMessage,
		})
	}

	sortFoundEmails(found)

	result := types.EmailResult{
		FoundEmails:     found,
		VerificationLog: verificationLog,
	}

	if selected := selectMostLikely(found, cfg); selected != nil {
		email := selected.Email
		result.MostLikelyEmail = &email
		result.ConfidenceScore = selected.Confidence
	}

	return Result{EmailResult: result, UsedSMTP: usedSMTP}
}

func splitEmail(email string) (local, host string, ok bool) {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func baseConfidence(c types.Candidate, nameInEmail, matchesPrimary bool) uint8 {
	var confidence int
	if c.FromPattern && nameInEmail {
		confidence += 3
	}
	if c.FromScrape && nameInEmail {
		confidence += 5
	}
	if c.FromScrape && !nameInEmail {
		confidence += 2
	}
	if c.FromPattern && !nameInEmail {
		confidence += 1
	}
	if matchesPrimary {
		confidence += 1
	}
	return uint8(confidence)
}

func applyGenericPenalty(confidence uint8, isGeneric, nameInEmail bool) uint8 {
	c := int(confidence)
	if isGeneric && nameInEmail && c > 1 {
		c = max(1, c-5)
	} else if isGeneric && !nameInEmail && c > 2 {
		c = max(1, c-2)
	}
	return uint8(c)
}

func clamp(v int, lo, hi int) uint8 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint8(v)
}

func eligibleForSMTP(confidence uint8, c types.Candidate, nameInEmail bool) bool {
	if confidence >= 3 {
		return true
	}
	return c.FromScrape && nameInEmail && confidence > 1
}

func adaptiveSleep(minSleep, maxSleep time.Duration, verificationElapsed time.Duration) time.Duration {
	base := minSleep
	if maxSleep > minSleep {
		base = minSleep + time.Duration(rand.Int63n(int64(maxSleep-minSleep)))
	}
	adaptive := time.Duration(float64(verificationElapsed) * 0.1)
	if adaptive > time.Second {
		adaptive = time.Second
	}
	return base + adaptive
}

// sortFoundEmails sorts stably by (confidence desc, is_generic asc, source
// desc where "scraped" > "pattern").
func sortFoundEmails(found []types.FoundEmailData) {
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.IsGeneric != b.IsGeneric {
			return !a.IsGeneric
		}
		return a.Source > b.Source
	})
}

// selectMostLikely implements the three-step selection rule.
func selectMostLikely(found []types.FoundEmailData, cfg Config) *types.FoundEmailData {
	for i := range found {
		if !found[i].IsGeneric && found[i].Confidence >= cfg.ConfidenceThreshold {
			return &found[i]
		}
	}

	if len(found) == 0 {
		return nil
	}
	top := &found[0]
	if top.Confidence >= cfg.ConfidenceThreshold && (!top.IsGeneric || top.Confidence >= cfg.GenericConfidenceThreshold) {
		return top
	}
	return nil
}

// Alternatives returns found emails excluding the selection, bounded by
// cfg.MaxAlternatives.
func Alternatives(result types.EmailResult, cfg Config) []types.FoundEmailData {
	alts := make([]types.FoundEmailData, 0, len(result.FoundEmails))
	for _, f := range result.FoundEmails {
		if result.MostLikelyEmail != nil && f.Email == *result.MostLikelyEmail {
			continue
		}
		alts = append(alts, f)
	}
	if cfg.MaxAlternatives >= 0 && len(alts) > cfg.MaxAlternatives {
		alts = alts[:cfg.MaxAlternatives]
	}
	return alts
}
