// Package verifier determines, without sending mail, whether an address is
// plausibly deliverable. It resolves the domain's mail exchangers and runs a
// partial SMTP session against each candidate in priority order, folding the
// per-host outcomes into one tri-state verdict.
//
// A Valid verdict is never a certainty: some servers accept every recipient
// and bounce later. That's a known limitation of the technique, not something
// this package tries to engineer around.
package verifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mxverify/mxverify/types"
)

// NewEmailVerifier returns a verifier with the given options applied on top
// of the defaults: all checks enabled, 10s timeouts, opportunistic TLS, the
// local host name for EHLO and the null envelope sender.
func NewEmailVerifier(options ...Option) *EmailVerifier {
	v := &EmailVerifier{
		checks:      CheckFormat | CheckBlacklist | CheckDNS | CheckSMTP,
		dnsTimeout:  10 * time.Second,
		smtpTimeout: 10 * time.Second,
		heloHost:    localFQDN(),
		tlsPolicy:   TLSAttempt,
		logger:      discardLogger(),
	}

	for _, opt := range options {
		opt(v)
	}

	// A recipient probe without knowing which host to probe makes no sense
	if v.checks.Has(CheckSMTP) {
		v.checks |= CheckDNS
	}

	if v.resolver == nil {
		v.resolver = NewResolver(v.dnsTimeout, v.nameservers, v.logger)
	}

	if v.prober == nil {
		v.prober = NewProber(v.dialer, v.heloHost, v.fromAddress, v.smtpTimeout, v.tlsPolicy, v.tlsConfig, v.logger)
	}

	return v
}

// EmailVerifier runs the configured check sequence for one address:
// format, blacklist, MX resolution, SMTP probing. Independent Verify calls
// share no mutable state and may run fully in parallel.
type EmailVerifier struct {
	checks      Check
	resolver    Resolve
	prober      Probe
	blacklist   Blacklister
	dialer      DialContext
	nameservers []string
	dnsTimeout  time.Duration
	smtpTimeout time.Duration
	heloHost    string
	fromAddress string
	tlsPolicy   TLSPolicy
	tlsConfig   *tls.Config
	logger      logrus.FieldLogger
}

// discardLogger keeps library use quiet unless the caller opts in with
// WithLogger.
func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

// Verify reports the tri-state verdict for the address. The error return is
// reserved for programming/configuration mistakes, a negative or ambiguous
// validation shows up as the Result's Verdict and Failure, never as an error.
func (v *EmailVerifier) Verify(ctx context.Context, address string) (Result, error) {
	if ctx == nil {
		return Result{}, fmt.Errorf("verify: nil context")
	}

	return v.check(ctx, address), nil
}

// VerifyOrFail returns nil when the address is Valid and the classified
// *Error otherwise. An Unknown verdict surfaces as CategorySMTP with kind
// SMTPTemporaryFailure, carrying every per-host diagnostic collected.
func (v *EmailVerifier) VerifyOrFail(ctx context.Context, address string) error {
	result, err := v.Verify(ctx, address)
	if err != nil {
		return err
	}

	if result.Failure != nil {
		return result.Failure
	}

	return nil
}

// check is the verdict-producing core both presentation modes wrap.
func (v *EmailVerifier) check(ctx context.Context, address string) Result {
	result := Result{Address: address, Verdict: Valid}

	fail := func(e *Error) Result {
		result.Verdict = e.Verdict()
		result.Failure = e
		return result
	}

	start := time.Now()
	parts, err := v.checkSyntax(address)
	result.Timings.Add("syntax", time.Since(start))

	if err != nil {
		return fail(err)
	}

	if v.checks.Has(CheckBlacklist) && v.blacklist != nil && v.blacklist.IsBlacklisted(parts.Domain) {
		return fail(newBlacklistError(parts.Domain))
	}

	if !v.checks.Has(CheckDNS) {
		return result
	}

	start = time.Now()
	hosts, err2 := v.resolver.Resolve(ctx, parts.Domain)
	result.Timings.Add("resolve", time.Since(start))

	if err2 != nil {
		return fail(asVerifierError(err2))
	}

	if !v.checks.Has(CheckSMTP) {
		return result
	}

	start = time.Now()
	smtpErr := v.checkHosts(ctx, hosts, parts.Address)
	result.Timings.Add("probe", time.Since(start))

	if smtpErr != nil {
		return fail(smtpErr)
	}

	return result
}

// checkSyntax is the format gate, it runs before any network activity. Both
// the stdlib parser and the cheaper shape checks have to pass, and the domain
// must survive IDNA conversion. The returned parts are in ASCII (ACE) form,
// ready for the wire.
func (v *EmailVerifier) checkSyntax(address string) (types.EmailParts, *Error) {
	parts, err := types.NewEmailParts(address)
	if err != nil {
		return types.EmailParts{}, newFormatError(err.Error(), err)
	}

	if v.checks.Has(CheckFormat) {
		if !parseAddress(parts.Address) {
			return types.EmailParts{}, newFormatError(fmt.Sprintf("address %q has invalid syntax", address), nil)
		}

		if !looksLikeValidLocalPart(parts.Local) {
			return types.EmailParts{}, newFormatError(fmt.Sprintf("local part %q has invalid syntax", parts.Local), nil)
		}

		if !looksLikeValidDomain(parts.Domain) {
			return types.EmailParts{}, newFormatError(fmt.Sprintf("domain part %q has invalid syntax", parts.Domain), nil)
		}
	}

	ascii, err := parts.ASCII()
	if err != nil {
		return types.EmailParts{}, newFormatError(fmt.Sprintf("domain part %q has no IDNA representation", parts.Domain), err)
	}

	return ascii, nil
}

// checkHosts drives the prober across the candidates in priority order.
// Success and permanent rejection are both terminal, the first conclusive
// answer wins regardless of which host gives it. Ambiguity is not: one
// host's shrug must not mask a conclusive answer from the next. Exhausting
// the list on ambiguity alone yields the temporary-failure error that maps
// to an Unknown verdict.
func (v *EmailVerifier) checkHosts(ctx context.Context, hosts HostList, recipient string) *Error {
	var diags []Diagnostic

	for _, mx := range hosts {
		out := v.prober.Probe(ctx, mx.Host, recipient)

		switch out.Kind {
		case OutcomeSuccess:
			return nil

		case OutcomePermanent:
			diags = append(diags, Diagnostic{Host: mx.Host, Stage: out.Stage, Code: out.Code, Message: out.Message})

			kind := SMTPCommunicationRefused
			if out.Stage == StageRcptTo {
				kind = SMTPAddressNotDeliverable
			}

			return newSMTPError(kind, fmt.Sprintf("host %s rejected with %d", mx.Host, out.Code), diags)

		case OutcomeAmbiguous:
			diags = append(diags, Diagnostic{Host: mx.Host, Stage: out.Stage, Code: out.Code, Message: out.Message})
		}
	}

	return newSMTPError(SMTPTemporaryFailure, fmt.Sprintf("no conclusive answer from %d host(s)", len(hosts)), diags)
}

// asVerifierError converts the resolver's error return, which is always a
// *Error already, guarding against future implementations of Resolve.
func asVerifierError(err error) *Error {
	if vErr, ok := err.(*Error); ok {
		return vErr
	}

	return newDNSError(DNSNoNameserver, err.Error(), err)
}
