// Package contact turns a raw types.Contact into a types.ValidatedContact,
// deriving names and a bare domain so the rest of the pipeline never has to
// deal with optional fields or URL strings.
package contact

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"emailsleuth/internal/types"
)

// ErrInsufficientInput is returned when a contact is missing the minimum
// fields needed to run the pipeline: some form of name, and a domain.
var ErrInsufficientInput = errors.New("contact: insufficient input")

// Validate derives a types.ValidatedContact from c, splitting FullName when
// FirstName/LastName are absent and reducing Domain to a bare lowercased
// host. It never performs network I/O.
func Validate(c types.Contact) (types.ValidatedContact, error) {
	first, last, full, err := resolveNames(c)
	if err != nil {
		return types.ValidatedContact{}, err
	}

	if c.Domain == nil || strings.TrimSpace(*c.Domain) == "" {
		return types.ValidatedContact{}, fmt.Errorf("%w: missing domain", ErrInsufficientInput)
	}

	websiteURL, domain, err := resolveDomain(*c.Domain)
	if err != nil {
		return types.ValidatedContact{}, err
	}

	return types.ValidatedContact{
		FirstName:  first,
		LastName:   last,
		FullName:   full,
		WebsiteURL: websiteURL,
		Domain:     domain,
	}, nil
}

func resolveNames(c types.Contact) (first, last, full string, err error) {
	if c.FirstName != nil && strings.TrimSpace(*c.FirstName) != "" {
		first = strings.TrimSpace(*c.FirstName)
	}
	if c.LastName != nil && strings.TrimSpace(*c.LastName) != "" {
		last = strings.TrimSpace(*c.LastName)
	}
	if c.FullName != nil && strings.TrimSpace(*c.FullName) != "" {
		full = strings.TrimSpace(*c.FullName)
	}

	if first == "" && last == "" {
		if full == "" {
			return "", "", "", fmt.Errorf("%w: no name provided", ErrInsufficientInput)
		}
		parts := strings.Fields(full)
		switch len(parts) {
		case 0:
			return "", "", "", fmt.Errorf("%w: empty full name", ErrInsufficientInput)
		case 1:
			first = parts[0]
		default:
			first = parts[0]
			last = strings.Join(parts[1:], " ")
		}
	}

	if full == "" {
		full = strings.TrimSpace(first + " " + last)
	}

	if first == "" {
		return "", "", "", fmt.Errorf("%w: first name required for pattern generation", ErrInsufficientInput)
	}

	return first, last, full, nil
}

// resolveDomain accepts a bare domain ("acme.com") or a full URL
// ("https://www.acme.com/about") and returns both a website URL to scrape
// from and the bare, lowercased host to resolve mail for.
func resolveDomain(raw string) (*url.URL, string, error) {
	raw = strings.TrimSpace(raw)

	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return nil, "", fmt.Errorf("%w: could not extract domain from %q", ErrInsufficientInput, raw)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return nil, "", fmt.Errorf("%w: could not extract domain from %q", ErrInsufficientInput, raw)
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}

	return u, host, nil
}
