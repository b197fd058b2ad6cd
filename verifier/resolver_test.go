package verifier

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer serves handler on a loopback UDP socket and returns its
// address. The server is torn down when the test finishes.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() {
		_ = srv.ActivateAndServe()
	}()

	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return pc.LocalAddr().String()
}

func mxAnswer(name string, pref uint16, host string) dns.RR {
	return &dns.MX{
		Hdr:        dns.RR_Header{Name: name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 300},
		Preference: pref,
		Mx:         host,
	}
}

// replyWith builds a handler answering every query with the given rcode and
// answer section.
func replyWith(rcode int, answers ...dns.RR) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, rcode)
		m.Answer = answers
		_ = w.WriteMsg(m)
	}
}

func newLocalResolver(t *testing.T, handler dns.HandlerFunc) *Resolver {
	t.Helper()

	addr := startDNSServer(t, handler)
	return NewResolver(2*time.Second, []string{addr}, testLogger())
}

func TestResolveOrdersByPreference(t *testing.T) {
	r := newLocalResolver(t, func(w dns.ResponseWriter, req *dns.Msg) {
		name := req.Question[0].Name
		m := new(dns.Msg)
		m.SetReply(req)
		m.Answer = []dns.RR{
			mxAnswer(name, 20, "backup.example.org."),
			mxAnswer(name, 5, "primary.example.org."),
			mxAnswer(name, 10, "secondary.example.org."),
		}
		_ = w.WriteMsg(m)
	})

	hosts, err := r.Resolve(context.Background(), "example.org")
	require.NoError(t, err)

	assert.Equal(t, []string{"primary.example.org", "secondary.example.org", "backup.example.org"}, hosts.Hosts())
}

func TestResolveErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler dns.HandlerFunc
		kind    DNSKind
	}{
		{
			name:    "nxdomain",
			handler: replyWith(dns.RcodeNameError),
			kind:    DNSDomainNotFound,
		},
		{
			name:    "servfail",
			handler: replyWith(dns.RcodeServerFailure),
			kind:    DNSMisconfiguredZone,
		},
		{
			name:    "formerr",
			handler: replyWith(dns.RcodeFormatError),
			kind:    DNSMisconfiguredZone,
		},
		{
			name:    "noerror without records",
			handler: replyWith(dns.RcodeSuccess),
			kind:    DNSNoMXRecords,
		},
		{
			name: "only bogus exchangers",
			handler: func(w dns.ResponseWriter, req *dns.Msg) {
				name := req.Question[0].Name
				m := new(dns.Msg)
				m.SetReply(req)
				m.Answer = []dns.RR{mxAnswer(name, 0, ".")}
				_ = w.WriteMsg(m)
			},
			kind: DNSNoValidMXRecords,
		},
		{
			name:    "refused by every nameserver",
			handler: replyWith(dns.RcodeRefused),
			kind:    DNSNoNameserver,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newLocalResolver(t, tc.handler)

			hosts, err := r.Resolve(context.Background(), "example.org")
			assert.Nil(t, hosts)
			require.Error(t, err)

			var vErr *Error
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, CategoryDNS, vErr.Category)
			assert.Equal(t, tc.kind, vErr.DNSKind)
			assert.True(t, errors.Is(err, ErrDNSLookupFailed))
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	// A handler that never writes a reply leaves the client waiting on its
	// own timeout.
	addr := startDNSServer(t, func(dns.ResponseWriter, *dns.Msg) {})
	r := NewResolver(100*time.Millisecond, []string{addr}, testLogger())

	_, err := r.Resolve(context.Background(), "example.org")
	require.Error(t, err)

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, DNSTimeout, vErr.DNSKind)
}

func TestResolveDomainLiteral(t *testing.T) {
	// No nameserver configured on purpose, a literal must not hit DNS
	r := NewResolver(time.Second, []string{"127.0.0.1:1"}, testLogger())

	t.Run("valid IPv4", func(t *testing.T) {
		hosts, err := r.Resolve(context.Background(), "[10.0.0.1]")
		require.NoError(t, err)
		assert.Equal(t, HostList{{Host: "10.0.0.1"}}, hosts)
	})

	t.Run("valid IPv6", func(t *testing.T) {
		hosts, err := r.Resolve(context.Background(), "[::1]")
		require.NoError(t, err)
		assert.Equal(t, HostList{{Host: "::1"}}, hosts)
	})

	t.Run("bogus literal", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "[not-an-ip]")
		require.Error(t, err)

		var vErr *Error
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, DNSNoValidMXRecords, vErr.DNSKind)
	})
}

func TestCollectExchangers(t *testing.T) {
	name := "example.org."

	tests := []struct {
		name    string
		answer  []dns.RR
		expect  HostList
		records int
	}{
		{
			name:    "empty answer",
			answer:  nil,
			expect:  nil,
			records: 0,
		},
		{
			name: "trailing dots trimmed",
			answer: []dns.RR{
				mxAnswer(name, 10, "mx.example.org."),
			},
			expect:  HostList{{Host: "mx.example.org", Pref: 10}},
			records: 1,
		},
		{
			name: "null MX filtered but counted",
			answer: []dns.RR{
				mxAnswer(name, 0, "."),
			},
			expect:  nil,
			records: 1,
		},
		{
			name: "duplicate host keeps lowest preference",
			answer: []dns.RR{
				mxAnswer(name, 20, "mx.example.org."),
				mxAnswer(name, 10, "mx.example.org."),
			},
			expect:  HostList{{Host: "mx.example.org", Pref: 10}},
			records: 2,
		},
		{
			name: "non-MX records ignored entirely",
			answer: []dns.RR{
				&dns.A{
					Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
					A:   net.IPv4(10, 0, 0, 1),
				},
				mxAnswer(name, 10, "mx.example.org."),
			},
			expect:  HostList{{Host: "mx.example.org", Pref: 10}},
			records: 1,
		},
		{
			name: "bogus exchanger filtered, valid one kept",
			answer: []dns.RR{
				mxAnswer(name, 10, "localhost."),
				mxAnswer(name, 20, "mx.example.org."),
			},
			expect:  HostList{{Host: "mx.example.org", Pref: 20}},
			records: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, records := collectExchangers(tc.answer)
			assert.Equal(t, tc.expect, list)
			assert.Equal(t, tc.records, records)
		})
	}
}
