package verifier

import (
	"context"
	"net"
)

type DialContext interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Resolve interface {
	Resolve(ctx context.Context, domain string) (HostList, error)
}

type Probe interface {
	Probe(ctx context.Context, host, recipient string) Outcome
}

// Blacklister reports whether a domain is a known disposable / trap domain.
// Implementations must be safe for concurrent use and must not block on a
// refresh in progress.
type Blacklister interface {
	IsBlacklisted(domain string) bool
}
