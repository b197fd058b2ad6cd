package verifier

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// Check is a bitmask selecting which verification steps run.
type Check uint8

const (
	CheckFormat Check = 1 << iota
	CheckBlacklist
	CheckDNS
	CheckSMTP
)

// Has returns true when all bits of c are set in v.
func (v Check) Has(c Check) bool {
	return v&c == c
}

// Option configures an EmailVerifier at construction time.
type Option func(*EmailVerifier)

// WithChecks replaces the default check selection. CheckSMTP implies
// CheckDNS, the constructor adds the bit when it's missing.
func WithChecks(checks Check) Option {
	return func(v *EmailVerifier) {
		v.checks = checks
	}
}

// WithResolver replaces the MX resolver, mainly useful in tests.
func WithResolver(r Resolve) Option {
	return func(v *EmailVerifier) {
		v.resolver = r
	}
}

// WithProber replaces the SMTP prober, mainly useful in tests.
func WithProber(p Probe) Option {
	return func(v *EmailVerifier) {
		v.prober = p
	}
}

// WithBlacklist installs the domain blacklist consulted before any network
// activity.
func WithBlacklist(b Blacklister) Option {
	return func(v *EmailVerifier) {
		v.blacklist = b
	}
}

// WithDialer replaces the dialer used for SMTP connections. Handy behind
// SOCKS proxies or in tests.
func WithDialer(d DialContext) Option {
	return func(v *EmailVerifier) {
		v.dialer = d
	}
}

// WithNameservers pins the resolver to specific servers ("host:port")
// instead of the system configuration.
func WithNameservers(servers []string) Option {
	return func(v *EmailVerifier) {
		v.nameservers = servers
	}
}

// WithTimeouts sets the per-exchange DNS timeout and the per-step SMTP
// timeout. Non-positive values keep the defaults.
func WithTimeouts(dns, smtp time.Duration) Option {
	return func(v *EmailVerifier) {
		if dns > 0 {
			v.dnsTimeout = dns
		}
		if smtp > 0 {
			v.smtpTimeout = smtp
		}
	}
}

// WithHELO sets the name announced in the EHLO/HELO command.
func WithHELO(host string) Option {
	return func(v *EmailVerifier) {
		if host != "" {
			v.heloHost = host
		}
	}
}

// WithFrom sets the envelope sender used in MAIL FROM. The default is the
// null sender, which every receiver must accept per RFC 5321.
func WithFrom(address string) Option {
	return func(v *EmailVerifier) {
		v.fromAddress = address
	}
}

// WithTLSPolicy controls STARTTLS behaviour during the probe.
func WithTLSPolicy(policy TLSPolicy) Option {
	return func(v *EmailVerifier) {
		v.tlsPolicy = policy
	}
}

// WithTLSConfig overrides the TLS client configuration used for STARTTLS.
// The ServerName is filled in per host when left empty.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(v *EmailVerifier) {
		v.tlsConfig = cfg
	}
}

// WithLogger installs the logger. The default discards everything.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(v *EmailVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}
