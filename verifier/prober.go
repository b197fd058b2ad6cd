package verifier

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/sirupsen/logrus"
)

const smtpPort = "25"

// TLSPolicy controls the opportunistic STARTTLS step of a probe.
type TLSPolicy uint8

const (
	// TLSAttempt upgrades when the server advertises STARTTLS and falls back
	// to plaintext when the server refuses the upgrade
	TLSAttempt TLSPolicy = iota

	// TLSSkip never attempts an upgrade
	TLSSkip
)

// Prober runs the partial SMTP handshake against a single host:
// connect, greeting, EHLO/HELO, optional STARTTLS, MAIL FROM, RCPT TO.
// It never proceeds to DATA. All transport and protocol surprises are
// converted into an Outcome at the prober boundary, nothing leaks out raw.
type Prober struct {
	dialer    DialContext
	heloHost  string
	from      string
	port      string
	timeout   time.Duration
	tlsPolicy TLSPolicy
	tlsConfig *tls.Config
	logger    logrus.FieldLogger
}

func NewProber(dialer DialContext, heloHost, from string, timeout time.Duration, tlsPolicy TLSPolicy, tlsConfig *tls.Config, logger logrus.FieldLogger) *Prober {

	if dialer == nil {
		dialer = &net.Dialer{Timeout: timeout}
	}

	return &Prober{
		dialer:    dialer,
		heloHost:  heloHost,
		from:      from,
		port:      smtpPort,
		timeout:   timeout,
		tlsPolicy: tlsPolicy,
		tlsConfig: tlsConfig,
		logger:    logger.WithField("component", "prober"),
	}
}

// Probe performs one attempt against one host for one recipient. The session
// is torn down on every exit path and every blocking step is bounded by the
// configured timeout, a stalled peer yields an ambiguous outcome, never an
// unbounded wait.
func (p *Prober) Probe(ctx context.Context, host, recipient string) Outcome {
	logger := p.logger.WithFields(logrus.Fields{
		"host":      host,
		"recipient": recipient,
	})

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, p.port))
	if err != nil {
		return classify(StageConnect, err)
	}

	// Session deadline, re-armed before each protocol step. Applies to the
	// TLS layer too once the connection is upgraded.
	arm := func() { _ = conn.SetDeadline(time.Now().Add(p.timeout)) }

	arm()
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return classify(StageGreeting, err)
	}

	defer func() {
		// Abort the session without a DATA phase. Quit also releases the
		// transport, Close is the fallback for an already broken one.
		arm()
		if err := client.Quit(); err != nil {
			_ = client.Close()
		}
	}()

	// EHLO, with the client falling back to the legacy HELO on rejection
	arm()
	if err := client.Hello(p.heloHost); err != nil {
		return classify(StageHello, err)
	}

	if p.tlsPolicy != TLSSkip {
		if ok, _ := client.Extension("STARTTLS"); ok {
			arm()
			if out, fatal := p.startTLS(client, host, logger); fatal {
				return out
			}
		}
	}

	arm()
	if err := client.Mail(p.from); err != nil {
		return classify(StageMailFrom, err)
	}

	arm()
	if err := client.Rcpt(recipient); err != nil {
		return classify(StageRcptTo, err)
	}

	logger.Debug("Recipient accepted")
	return Outcome{Kind: OutcomeSuccess, Stage: StageRcptTo, Code: 250, Message: "recipient accepted"}
}

// startTLS attempts the opportunistic upgrade. A server refusing the STARTTLS
// command leaves the plaintext channel intact and the probe continues on it,
// a failed TLS handshake breaks the transport and ends the attempt.
func (p *Prober) startTLS(client *smtp.Client, host string, logger logrus.FieldLogger) (Outcome, bool) {
	cfg := p.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{ServerName: host}
	} else if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = host
	}

	err := client.StartTLS(cfg)
	if err == nil {
		return Outcome{}, false
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		logger.WithField("code", tpErr.Code).Debug("STARTTLS refused, continuing in plaintext")
		return Outcome{}, false
	}

	logger.WithError(err).Debug("TLS negotiation failed")
	return classify(StageStartTLS, err), true
}

// classify converts an error from any probe step into the per-host outcome:
// 5xx replies are permanent, everything else (4xx, timeouts, disconnects,
// malformed replies) is ambiguous.
func classify(stage Stage, err error) Outcome {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		kind := OutcomeAmbiguous
		if tpErr.Code >= 500 {
			kind = OutcomePermanent
		}

		return Outcome{Kind: kind, Stage: stage, Code: tpErr.Code, Message: tpErr.Msg}
	}

	return Outcome{Kind: OutcomeAmbiguous, Stage: stage, Message: err.Error()}
}
