package commands

import (
	"net"
	"time"
)

type CheckResult struct {
	Email       string   `json:"email"`
	Valid       *bool    `json:"valid"`
	Verdict     string   `json:"verdict"`
	Reason      string   `json:"reason,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	Version     int      `json:"version"`
}

type ReportStats struct {
	Passed   uint64 `json:"passed"`
	Rejected uint64 `json:"rejected"`
	Unknown  uint64 `json:"unknown"`
	Duration int64  `json:"run_duration_ms"`
}

type CheckSettings struct {
	Format  string
	Workers uint
	CSV     csvOptions
	Check   checkOptions
}

type checkOptions struct {
	Resolver    net.IP
	TTL         time.Duration
	DNSTimeout  time.Duration
	SMTPTimeout time.Duration
	Hello       string
	From        string
	SkipTLS     bool
}

type csvOptions struct {
	skipRows uint64
	column   uint64
}
