// Package engine orchestrates the per-contact email-sleuth pipeline:
// pattern generation, scraping, domain resolution, scoring, and selection.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"emailsleuth/internal/pattern"
	"emailsleuth/internal/score"
	"emailsleuth/internal/scrape"
	"emailsleuth/internal/smtpprobe"
	"emailsleuth/internal/types"
	"emailsleuth/internal/verify"
)

// Resolver resolves a domain's preferred mail exchanger; satisfied by
// *dnsresolve.Resolver.
type Resolver interface {
	ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error)
}

// Config carries every tunable spec §6 lists that the engine itself
// consumes (as opposed to config loading, which belongs to the ambient
// config package). The email regex is not among them: candidates are
// always validated against the fixed pattern.EmailRegex.
type Config struct {
	UserAgent                  string
	RequestTimeout             time.Duration
	CommonPagesToScrape        []string
	SMTPSenderEmail            string
	SMTPTimeout                time.Duration
	MaxVerificationAttempts    int
	MinSleep                   time.Duration
	MaxSleep                   time.Duration
	GenericEmailPrefixes       map[string]bool
	ConfidenceThreshold        uint8
	GenericConfidenceThreshold uint8
	MaxAlternatives            int
}

// Error is returned only for internal invariant violations; every other
// failure mode degrades locally per spec §4.7.
type Error struct {
	Contact string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("engine: processing %s: %v", e.Contact, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Engine runs the pipeline for one contact at a time. It is safe for
// concurrent use: the HTTP client and resolver are shared by reference and
// never mutated after construction.
type Engine struct {
	cfg      Config
	resolver Resolver
	scraper  *scrape.Scraper
	prober   *smtpprobe.Prober
	verifier *verify.Verifier
	logger   *zap.Logger
}

// New builds an Engine from a shared HTTP client and DNS resolver.
func New(cfg Config, httpClient *http.Client, resolver Resolver, logger *zap.Logger) *Engine {
	scraper := scrape.New(httpClient, cfg.UserAgent, cfg.CommonPagesToScrape, logger)
	prober := smtpprobe.New(cfg.SMTPSenderEmail, cfg.SMTPTimeout, logger)
	verifier := verify.New(prober, cfg.MaxVerificationAttempts, cfg.MinSleep, cfg.MaxSleep, logger)

	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		scraper:  scraper,
		prober:   prober,
		verifier: verifier,
		logger:   logger,
	}
}

// FindEmail implements spec §4.7: generate, scrape, merge, resolve,
// score, select.
func (e *Engine) FindEmail(ctx context.Context, vc types.ValidatedContact) (types.EmailResult, error) {
	if vc.Domain == "" || vc.FirstName == "" {
		return types.EmailResult{}, &Error{Contact: vc.FullName, Err: fmt.Errorf("validated contact missing domain or first name")}
	}

	var methodsUsed []string
	methodsSeen := make(map[string]bool)
	addMethod := func(m string) {
		if !methodsSeen[m] {
			methodsSeen[m] = true
			methodsUsed = append(methodsUsed, m)
		}
	}

	patternEmails := pattern.Generate(vc.FirstName, vc.LastName, vc.Domain)
	if len(patternEmails) > 0 {
		addMethod("pattern_generation")
	}

	var scrapedEmails []string
	if vc.WebsiteURL != nil {
		raw := e.scraper.Scrape(ctx, vc.WebsiteURL)
		for _, email := range raw {
			local, host, ok := splitEmail(email)
			if !ok {
				continue
			}
			if host == vc.Domain || score.IsGeneric(local, e.cfg.GenericEmailPrefixes) {
				scrapedEmails = append(scrapedEmails, email)
			}
		}
		if len(scrapedEmails) > 0 {
			addMethod("website_scraping")
		}
	}

	candidates := mergeCandidates(patternEmails, scrapedEmails, vc.FirstName, vc.LastName)

	verificationLogDNS := make(map[string]string)
	var mailServer *types.MailServer
	ms, err := e.resolver.ResolveMailServer(ctx, vc.Domain)
	if err != nil {
		verificationLogDNS[vc.Domain] = err.Error()
		e.logger.Debug("mail server resolution failed, proceeding unverified", zap.String("domain", vc.Domain), zap.Error(err))
	} else {
		mailServer = &ms
	}

	cfg := score.Config{
		GenericPrefixes:            e.cfg.GenericEmailPrefixes,
		ConfidenceThreshold:        e.cfg.ConfidenceThreshold,
		GenericConfidenceThreshold: e.cfg.GenericConfidenceThreshold,
		MaxAlternatives:            e.cfg.MaxAlternatives,
		MinSleep:                   e.cfg.MinSleep,
		MaxSleep:                   e.cfg.MaxSleep,
	}

	sleeper := func(d time.Duration) {
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}

	scored := score.Process(ctx, candidates, vc.FirstName, vc.LastName, vc.Domain, mailServer, e.verifier, cfg, e.logger, sleeper)
	if scored.UsedSMTP {
		addMethod("smtp_verification")
	}

	result := scored.EmailResult
	result.MethodsUsed = methodsUsed
	if result.VerificationLog == nil {
		result.VerificationLog = make(map[string]string)
	}
	for k, v := range verificationLogDNS {
		result.VerificationLog[k] = v
	}

	return result, nil
}

// mergeCandidates implements the four-bucket merge order from spec
// §4.7(3): patterns-with-name, scraped-with-name, remaining-scraped,
// remaining-patterns — each step skipping already-seen emails, and
// combining from_pattern/from_scrape flags when the same address appears
// in both sets.
func mergeCandidates(patternEmails, scrapedEmails []string, firstName, lastName string) []types.Candidate {
	firstLower := lowerOrEmpty(firstName)
	lastLower := lowerOrEmpty(lastName)

	containsName := func(email string) bool {
		return (firstLower != "" && containsFold(email, firstLower)) || (lastLower != "" && containsFold(email, lastLower))
	}

	patternSet := make(map[string]bool, len(patternEmails))
	for _, e := range patternEmails {
		patternSet[e] = true
	}
	scrapeSet := make(map[string]bool, len(scrapedEmails))
	for _, e := range scrapedEmails {
		scrapeSet[e] = true
	}

	seen := make(map[string]bool)
	var ordered []string

	appendBucket := func(emails []string, filter func(string) bool) {
		for _, e := range emails {
			if seen[e] {
				continue
			}
			if filter != nil && !filter(e) {
				continue
			}
			seen[e] = true
			ordered = append(ordered, e)
		}
	}

	appendBucket(patternEmails, containsName)
	appendBucket(scrapedEmails, containsName)
	appendBucket(scrapedEmails, nil)
	appendBucket(patternEmails, nil)

	candidates := make([]types.Candidate, 0, len(ordered))
	for _, e := range ordered {
		candidates = append(candidates, types.Candidate{
			Email:       e,
			FromPattern: patternSet[e],
			FromScrape:  scrapeSet[e],
		})
	}
	return candidates
}

func lowerOrEmpty(s string) string {
	return strings.ToLower(s)
}

func splitEmail(email string) (local, host string, ok bool) {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func containsFold(haystack, needleLower string) bool {
	return strings.Contains(strings.ToLower(haystack), needleLower)
}
