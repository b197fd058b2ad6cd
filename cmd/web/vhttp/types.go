package vhttp

import "errors"

var (
	ErrMissingBody            = errors.New("missing body")
	ErrInvalidRequest         = errors.New("request is invalid")
	ErrBodyTooLarge           = errors.New("request body too large")
	ErrUnsupportedContentType = errors.New("unsupported content-type")
)

var empty = make([]string, 0)

type Response interface {
	PrepareResponse()
}

// VerifyResponse is the JSON shape of a verification answer. Valid is a
// nullable boolean: null means the mail system gave no conclusive answer.
type VerifyResponse struct {
	Valid       *bool    `json:"valid"`
	Verdict     string   `json:"verdict"`
	Reason      string   `json:"reason,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	Alternative string   `json:"alternative,omitempty"`
	CacheHitTTL float64  `json:"cache_hit_ttl_sec,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (r *VerifyResponse) PrepareResponse() {
	if r.Verdict == "" {
		r.Verdict = "unknown"
	}
}

type AutoCompleteResponse struct {
	Suggestions []string `json:"suggestions"`
	Error       string   `json:"error,omitempty"`
}

func (r *AutoCompleteResponse) PrepareResponse() {
	if r.Suggestions == nil {
		r.Suggestions = empty
	}
}

type VerifyRequest struct {
	Email        string `json:"email"`
	Alternatives bool   `json:"alternatives"`
}

type AutoCompleteRequest struct {
	Domain string `json:"domain"`
}
