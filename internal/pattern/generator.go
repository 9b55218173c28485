// Package pattern generates candidate email addresses from a name and
// domain. Generation is pure and deterministic: no I/O, no randomness.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"emailsleuth/internal/types"
)

// EmailRegex is the address-shape validator every generated (and scraped)
// candidate must pass.
var EmailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Generate returns the ordered, deduplicated set of candidate addresses for
// first/last at domain. It returns an empty slice, not an error, when the
// preconditions in spec §4.1 aren't met — callers that need to distinguish
// "no input" from "no valid patterns" should check inputs before calling.
func Generate(first, last, domain string) []string {
	f := sanitize(first)
	l := sanitize(last)
	d := strings.ToLower(strings.TrimSpace(domain))

	if f == "" || l == "" || d == "" || !strings.Contains(d, ".") {
		return nil
	}

	fi := f[:1]
	li := l[:1]

	locals := []string{
		f,
		f + "." + l,
		l + "." + f,
		fi + "." + l,
		f + "." + li,
		f + "_" + l,
		f + "-" + l,
		l + "_" + f,
		l + "-" + f,
		f + l,
		l + f,
		fi + l,
		f + li,
	}

	if len(f) >= 3 {
		locals = append(locals, f[:3]+l)
	}
	if len(l) >= 3 {
		locals = append(locals, f+l[:3])
	}

	seen := make(map[string]bool, len(locals))
	out := make([]string, 0, len(locals))
	for _, local := range locals {
		email := fmt.Sprintf("%s@%s", local, d)
		if seen[email] {
			continue
		}
		seen[email] = true
		if !EmailRegex.MatchString(email) {
			continue
		}
		out = append(out, email)
	}
	return out
}

// GenerateCandidates is Generate wrapped into types.Candidate values with
// FromPattern set, the shape the engine consumes.
func GenerateCandidates(first, last, domain string) []types.Candidate {
	emails := Generate(first, last, domain)
	out := make([]types.Candidate, 0, len(emails))
	for _, e := range emails {
		out = append(out, types.Candidate{Email: e, FromPattern: true})
	}
	return out
}

// sanitize trims outer whitespace, strips all interior whitespace, and
// lowercases, per spec §4.1.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), "")
	return strings.ToLower(s)
}
