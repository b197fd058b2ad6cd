package verifier

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups validation failures by concern. Callers that don't care
// about the exact failure mode can match on the category's sentinel error,
// callers that do can inspect the DNS/SMTP kind carried by the Error.
type Category string

const (
	CategoryFormat    Category = "format"
	CategoryBlacklist Category = "blacklist"
	CategoryDNS       Category = "dns"
	CategorySMTP      Category = "smtp"
)

// DNSKind classifies MX resolution failures. Callers must react differently
// to these, a timeout is retryable where NXDOMAIN is not, hence the split.
type DNSKind string

const (
	DNSDomainNotFound    DNSKind = "domain_not_found"
	DNSNoNameserver      DNSKind = "no_nameserver"
	DNSTimeout           DNSKind = "timeout"
	DNSMisconfiguredZone DNSKind = "misconfigured_zone"
	DNSNoMXRecords       DNSKind = "no_mx_records"
	DNSNoValidMXRecords  DNSKind = "no_valid_mx_records"
)

// SMTPKind classifies SMTP probe failures. The first two are definitive, the
// server positively refused. TemporaryFailure covers everything ambiguous:
// 4xx replies, timeouts, disconnects and protocol surprises.
type SMTPKind string

const (
	SMTPAddressNotDeliverable SMTPKind = "address_not_deliverable"
	SMTPCommunicationRefused  SMTPKind = "communication_refused"
	SMTPTemporaryFailure      SMTPKind = "temporary_failure"
)

var (
	// ErrValidationFailed is the root of the taxonomy, every *Error matches it
	ErrValidationFailed = errors.New("e-mail address validation failed")

	ErrBadAddressSyntax = errors.New("address has invalid syntax")
	ErrBlacklistedHost  = errors.New("domain is blacklisted")
	ErrDNSLookupFailed  = errors.New("MX resolution failed")
	ErrSMTPCheckFailed  = errors.New("SMTP check failed")

	ErrInvalidHost = errors.New("invalid host")
)

func categorySentinel(c Category) error {
	switch c {
	case CategoryFormat:
		return ErrBadAddressSyntax
	case CategoryBlacklist:
		return ErrBlacklistedHost
	case CategoryDNS:
		return ErrDNSLookupFailed
	case CategorySMTP:
		return ErrSMTPCheckFailed
	}

	return nil
}

// Error is the structured failure surfaced by VerifyOrFail. It always matches
// ErrValidationFailed and its category's sentinel with errors.Is, so callers
// can catch by concern without inspecting fields.
type Error struct {
	Category    Category
	DNSKind     DNSKind  // set when Category == CategoryDNS
	SMTPKind    SMTPKind // set when Category == CategorySMTP
	Message     string
	Diagnostics []Diagnostic // per-host detail, in attempt order
	cause       error
}

func (e *Error) Error() string {
	if len(e.Diagnostics) == 0 {
		return e.Message
	}

	parts := make([]string, 0, len(e.Diagnostics)+1)
	parts = append(parts, e.Message)
	for _, d := range e.Diagnostics {
		parts = append(parts, d.String())
	}

	return strings.Join(parts, "\n")
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	if target == ErrValidationFailed {
		return true
	}

	return target == categorySentinel(e.Category)
}

// Verdict maps the failure back onto the tri-state outcome. Only an ambiguous
// SMTP result is Unknown, every other failure mode is a definitive rejection.
func (e *Error) Verdict() Verdict {
	if e.Category == CategorySMTP && e.SMTPKind == SMTPTemporaryFailure {
		return Unknown
	}

	return Invalid
}

func newFormatError(msg string, cause error) *Error {
	return &Error{Category: CategoryFormat, Message: msg, cause: cause}
}

func newBlacklistError(domain string) *Error {
	return &Error{Category: CategoryBlacklist, Message: fmt.Sprintf("domain %q is blacklisted", domain)}
}

func newDNSError(kind DNSKind, msg string, cause error) *Error {
	return &Error{Category: CategoryDNS, DNSKind: kind, Message: msg, cause: cause}
}

func newSMTPError(kind SMTPKind, msg string, diags []Diagnostic) *Error {
	return &Error{Category: CategorySMTP, SMTPKind: kind, Message: msg, Diagnostics: diags}
}
