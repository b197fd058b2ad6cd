package verifier

import (
	"net/mail"
	"os"
	"unicode"
)

// MightBeAHostOrIP is a very rudimentary check to see if the argument could be either a host name or IP address
// It aims on speed and not for correctness. It's intended to weed-out bogus responses such as '.'
//
//nolint:gocyclo
func MightBeAHostOrIP(h string) bool {

	// Normally we can assume that host names have a tld or consists at least out of 4 characters
	lastCharIndex := len(h) - 1
	if 4 >= lastCharIndex || lastCharIndex >= 253 {
		return false
	}

	var dotCount uint8
	for i, c := range h {
		switch {
		case 48 <= c && c <= 57 /* 0-9 */ :
		case 65 <= c && c <= 90 /* A-Z */ :
		case 97 <= c && c <= 122 /* a-z */ :
		case c == 45 /* dash - */ :
		case c == 46 && 0 < i && i < lastCharIndex /* dot . */ :
			dotCount++
		default:
			return false
		}
	}

	// We need at least one dot for a domain to be valid
	return dotCount > 0
}

//nolint:gocyclo
func looksLikeValidLocalPart(local string) bool {

	var length = len(local)
	if length < 1 {
		return false
	}

	for i, c := range local {
		switch {
		case 48 <= c && c <= 57 /* 0-9 */ :
		case 65 <= c && c <= 90 /* A-Z */ :
		case 97 <= c && c <= 122 /* a-z */ :
		case c == 46 && 0 < i && i < length-1 /* . not first or last */ :

		case c == 33 /* ! */ :
		case c == 35 /* # */ :
		case c == 36 /* $ */ :
		case c == 37 /* % */ :
		case c == 38 /* & */ :
		case c == 39 /* ' */ :
		case c == 42 /* * */ :
		case c == 43 /* + */ :
		case c == 45 /* - */ :
		case c == 47 /* / */ :
		case c == 61 /* = */ :
		case c == 63 /* ? */ :
		case c == 94 /* ^ */ :
		case c == 95 /* _ */ :
		case c == 96 /* ` */ :
		case c == 123 /* { */ :
		case c == 124 /* | */ :
		case c == 125 /* } */ :
		case c == 126 /* ~ */ :

		case c >= 128 && !unicode.IsSpace(c) && !unicode.IsControl(c) /* IDNA conversion decides later */ :
		default:
			return false
		}
	}

	return true
}

//nolint:gocyclo
func looksLikeValidDomain(domain string) bool {
	var length = len(domain)

	// Normally we can assume that host names have a tld or consists at least out of 4 characters
	if 4 >= length || length >= 253 {
		return false
	}

	// A domain literal is delegated to the resolver, it decides on validity
	if domain[0] == '[' && domain[length-1] == ']' {
		return true
	}

	if domain[0] == 46 || domain[length-1] == 46 {
		return false
	}

	for i, c := range domain {
		switch {
		case 48 <= c && c <= 57 /* 0-9 */ :
		case 65 <= c && c <= 90 /* A-Z */ :
		case 97 <= c && c <= 122 /* a-z */ :
		case c == 45 && 0 < i /* dash - */ :
		case c == 46 /* dot . */ :
		case c >= 128 && !unicode.IsSpace(c) && !unicode.IsControl(c) /* IDNA conversion decides later */ :
		default:
			return false
		}
	}

	return true
}

// parseAddress wraps the stdlib parser, it rejects display names and groups
func parseAddress(address string) bool {
	a, err := mail.ParseAddress(address)
	return err == nil && a.Address == address
}

// localFQDN returns the host name to use in EHLO/HELO when none is configured
func localFQDN() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}

	return name
}
