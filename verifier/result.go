package verifier

import "fmt"

// Verdict is the tri-state answer to "is this address deliverable?". Unknown
// is a first-class value, never coerced to either of the other two: some
// servers greylist or tempfail and only the caller can decide what that means.
type Verdict uint8

const (
	Unknown Verdict = iota
	Invalid
	Valid
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}

	return "unknown"
}

// Bool presents the verdict as a nullable boolean, nil meaning Unknown.
func (v Verdict) Bool() *bool {
	if v == Unknown {
		return nil
	}

	b := v == Valid
	return &b
}

// OutcomeKind is the per-host probe classification.
type OutcomeKind uint8

const (
	// OutcomeAmbiguous means the host couldn't give a definitive answer,
	// the next candidate host should be consulted
	OutcomeAmbiguous OutcomeKind = iota

	// OutcomePermanent means the host positively rejected, no further host
	// is consulted
	OutcomePermanent

	// OutcomeSuccess means the host accepted the recipient
	OutcomeSuccess
)

// Stage names the probe step that produced an outcome.
type Stage string

const (
	StageConnect  Stage = "connect"
	StageGreeting Stage = "greeting"
	StageHello    Stage = "helo"
	StageStartTLS Stage = "starttls"
	StageMailFrom Stage = "mail"
	StageRcptTo   Stage = "rcpt"
)

// Outcome is the result of probing a single host. It's produced once per
// attempt and never merged with other hosts' outcomes, folding them into one
// verdict is the coordinator's job.
type Outcome struct {
	Kind    OutcomeKind
	Stage   Stage
	Code    int // SMTP reply code, 0 when the failure was not an SMTP reply
	Message string
}

// Diagnostic is the per-host trace kept for Unknown and Invalid verdicts.
type Diagnostic struct {
	Host    string
	Stage   Stage
	Code    int
	Message string
}

func (d Diagnostic) String() string {
	if d.Code > 0 {
		return fmt.Sprintf("%s: %s: %d %s", d.Host, d.Stage, d.Code, d.Message)
	}

	return fmt.Sprintf("%s: %s: %s", d.Host, d.Stage, d.Message)
}

// Result is what a Verify call produces. Failure is nil for a Valid verdict
// and carries the classified error otherwise.
type Result struct {
	Address string
	Verdict Verdict
	Failure *Error
	Timings
}

// Diagnostics returns the per-host messages collected during the SMTP stage,
// in attempt order. Empty for verdicts decided before any probe ran.
func (r Result) Diagnostics() []Diagnostic {
	if r.Failure == nil {
		return nil
	}

	return r.Failure.Diagnostics
}
