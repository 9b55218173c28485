package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailsleuth/internal/types"
)

type stubResolver struct {
	ms  types.MailServer
	err error
}

func (s stubResolver) ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error) {
	return s.ms, s.err
}

func testConfig() Config {
	return Config{
		UserAgent:                  "email-sleuth-test",
		RequestTimeout:             time.Second,
		CommonPagesToScrape:        []string{"contact", "about", "team"},
		SMTPSenderEmail:            "verify@example.com",
		SMTPTimeout:                time.Second,
		MaxVerificationAttempts:    2,
		MinSleep:                  time.Millisecond,
		MaxSleep:                  2 * time.Millisecond,
		GenericEmailPrefixes:       map[string]bool{"contact": true, "info": true},
		ConfidenceThreshold:        4,
		GenericConfidenceThreshold: 7,
		MaxAlternatives:            5,
	}
}

func newTestServer(t *testing.T, emails map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range emails {
		path, body := path, body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(body))
		})
	}
	return httptest.NewServer(mux)
}

// S6: insufficient input never reaches DNS/HTTP/SMTP.
func TestFindEmailSkipsInsufficientInput(t *testing.T) {
	e := New(testConfig(), http.DefaultClient, stubResolver{}, zap.NewNop())
	_, err := e.FindEmail(context.Background(), types.ValidatedContact{Domain: "example.com"})
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
}

// S3: DNS NXDOMAIN degrades to unverified scoring, never aborts.
func TestFindEmailDNSFailureDegrades(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/": `<html><body>no emails here</body></html>`})
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/")
	resolver := stubResolver{err: types.ErrNxDomain}
	e := New(testConfig(), srv.Client(), resolver, zap.NewNop())

	result, err := e.FindEmail(context.Background(), types.ValidatedContact{
		FirstName: "John", LastName: "Roe", FullName: "John Roe",
		WebsiteURL: base, Domain: "nxdomain.test",
	})
	require.NoError(t, err)
	assert.Nil(t, result.MostLikelyEmail)
	assert.Contains(t, result.VerificationLog["nxdomain.test"], "domain does not exist")
	for _, f := range result.FoundEmails {
		assert.Nil(t, f.VerificationStatus)
	}
	assert.NotContains(t, result.MethodsUsed, "smtp_verification")
}

// S10 (spec invariant): zero scraped emails -> pattern-only, methods omit scraping.
func TestFindEmailNoScrapeResultsOmitsMethod(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/":        `<html><body>nothing</body></html>`,
		"/contact": `<html><body>nothing here either</body></html>`,
		"/about":   `<html><body>still nothing</body></html>`,
		"/team":    `<html><body>still nothing</body></html>`,
	})
	defer srv.Close()
	base, _ := url.Parse(srv.URL + "/")

	// No mail server configured: keeps this test hermetic (no real SMTP dial).
	resolver := stubResolver{err: types.ErrNoDNSRecords}
	e := New(testConfig(), srv.Client(), resolver, zap.NewNop())

	result, err := e.FindEmail(context.Background(), types.ValidatedContact{
		FirstName: "Jane", LastName: "Doe", FullName: "Jane Doe",
		WebsiteURL: base, Domain: "example.com",
	})
	require.NoError(t, err)
	assert.NotContains(t, result.MethodsUsed, "website_scraping")
	assert.Contains(t, result.MethodsUsed, "pattern_generation")
}

// The name check must test the whole email string, not just the local
// part: a scraped generic address at a name-bearing host (e.g. the
// contact's domain itself containing the surname) still belongs in the
// scraped-with-name bucket ahead of the remaining-scraped bucket.
func TestMergeCandidatesNameMatchChecksFullEmailNotJustLocalPart(t *testing.T) {
	candidates := mergeCandidates(
		nil,
		[]string{"info@example.com", "contact@roe-example.com"},
		"Jane", "Roe",
	)
	require.Len(t, candidates, 2)
	assert.Equal(t, "contact@roe-example.com", candidates[0].Email)
	assert.Equal(t, "info@example.com", candidates[1].Email)
}

func TestMergeCandidatesOrderAndFlags(t *testing.T) {
	candidates := mergeCandidates(
		[]string{"jane.doe@example.com", "info@example.com"},
		[]string{"jane.doe@example.com", "contact@example.com"},
		"Jane", "Doe",
	)
	require.Len(t, candidates, 3)
	assert.Equal(t, "jane.doe@example.com", candidates[0].Email)
	assert.True(t, candidates[0].FromPattern)
	assert.True(t, candidates[0].FromScrape)
	assert.Equal(t, "contact@example.com", candidates[1].Email)
	assert.Equal(t, "info@example.com", candidates[2].Email)
}
