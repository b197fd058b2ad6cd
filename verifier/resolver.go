package verifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const defaultResolvConf = "/etc/resolv.conf"

// MX is one mail exchanger candidate. Lower Pref means it's tried earlier.
type MX struct {
	Host string
	Pref uint16
}

// HostList is the priority-ordered candidate list produced by a resolution.
// It's created fresh per Resolve call and never mutated afterwards.
type HostList []MX

func (l HostList) Hosts() []string {
	hosts := make([]string, 0, len(l))
	for _, mx := range l {
		hosts = append(hosts, mx.Host)
	}

	return hosts
}

// NewResolver returns a Resolver querying the given nameservers, or the ones
// from resolv.conf when none are given. The timeout bounds each query.
func NewResolver(timeout time.Duration, servers []string, logger logrus.FieldLogger) *Resolver {
	if len(servers) == 0 {
		servers = serversFromSystem()
	}

	return &Resolver{
		udp:     &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
		servers: servers,
		logger:  logger.WithField("component", "resolver"),
	}
}

type Resolver struct {
	udp     *dns.Client
	tcp     *dns.Client
	servers []string
	logger  logrus.FieldLogger
}

// Resolve queries the MX records for domain and returns the validated,
// deduplicated candidates sorted ascending by preference. Ties keep the
// response order. All failure paths produce a CategoryDNS *Error, an empty
// result after filtering included: that's DNSNoValidMXRecords, never an
// empty success.
func (r *Resolver) Resolve(ctx context.Context, domain string) (HostList, error) {

	// A domain literal is its own, single candidate. No DNS involved.
	if lit, ok := strings.CutPrefix(domain, "["); ok && strings.HasSuffix(lit, "]") {
		addr := strings.TrimSuffix(lit, "]")
		if net.ParseIP(addr) == nil {
			return nil, newDNSError(DNSNoValidMXRecords, fmt.Sprintf("domain literal %q is not a valid IP address", domain), nil)
		}

		return HostList{{Host: addr}}, nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)

	in, err := r.exchange(ctx, m)
	if err != nil {
		return nil, err
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, newDNSError(DNSDomainNotFound, fmt.Sprintf("domain %q not found", domain), nil)
	default:
		return nil, newDNSError(DNSMisconfiguredZone, fmt.Sprintf("nameserver replied %s for %q", dns.RcodeToString[in.Rcode], domain), nil)
	}

	list, records := collectExchangers(in.Answer)

	r.logger.WithFields(logrus.Fields{
		"domain":  domain,
		"records": records,
		"usable":  len(list),
	}).Debug("MX resolution done")

	if records == 0 {
		return nil, newDNSError(DNSNoMXRecords, fmt.Sprintf("no MX records for domain %q", domain), nil)
	}

	if len(list) == 0 {
		return nil, newDNSError(DNSNoValidMXRecords, fmt.Sprintf("%d MX record(s) for domain %q, none valid", records, domain), ErrInvalidHost)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Pref < list[j].Pref
	})

	return list, nil
}

// collectExchangers validates and deduplicates the MX answer section. A
// duplicate hostname keeps its lowest preference. Returns the usable list and
// the raw MX record count, the caller tells "no records" and "no valid
// records" apart with the latter.
func collectExchangers(answer []dns.RR) (HostList, int) {
	var list HostList
	var records int
	seen := make(map[string]int, len(answer))

	for _, rr := range answer {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}

		records++

		// Exchangers end on a "." or, when bogus, consist solely of one
		host := strings.TrimRight(mx.Mx, ".")
		if !MightBeAHostOrIP(host) {
			continue
		}

		if i, dup := seen[host]; dup {
			if mx.Preference < list[i].Pref {
				list[i].Pref = mx.Preference
			}
			continue
		}

		seen[host] = len(list)
		list = append(list, MX{Host: host, Pref: mx.Preference})
	}

	return list, records
}

// exchange runs the query against each configured nameserver until one
// produces a reply, retrying over TCP on truncation. A query timeout is
// terminal, an unresponsive or refusing server is not, the next one may still
// answer.
func (r *Resolver) exchange(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	var lastErr error

	for _, server := range r.servers {
		in, _, err := r.udp.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			in, _, err = r.tcp.ExchangeContext(ctx, m, server)
		}

		if err != nil {
			if isTimeoutError(err) {
				return nil, newDNSError(DNSTimeout, fmt.Sprintf("MX query to %s timed out", server), err)
			}

			r.logger.WithError(err).WithField("server", server).Debug("Nameserver unusable, trying next")
			lastErr = err
			continue
		}

		if in.Rcode == dns.RcodeRefused {
			lastErr = fmt.Errorf("nameserver %s refused the query", server)
			continue
		}

		return in, nil
	}

	return nil, newDNSError(DNSNoNameserver, "no nameserver answered the MX query", lastErr)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

func serversFromSystem() []string {
	conf, err := dns.ClientConfigFromFile(defaultResolvConf)
	if err != nil || len(conf.Servers) == 0 {
		return []string{net.JoinHostPort("127.0.0.1", "53")}
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}

	return servers
}
