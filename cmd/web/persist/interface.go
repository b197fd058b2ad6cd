package persist

import (
	"context"
	"io"

	"github.com/mxverify/mxverify/cmd/web/hitlist"
	"github.com/mxverify/mxverify/verifier"
)

type PersistCallbackFn func(d hitlist.Domain, r hitlist.Recipient, verdict verifier.Verdict) error

type Persister interface {
	// Store stores the verdict for a domain and (hashed) recipient. The
	// implementation decides what key to use, although it should use a similar
	// one to restore data using the Range implementation
	Store(ctx context.Context, d hitlist.Domain, r hitlist.Recipient, verdict verifier.Verdict) error

	// Range reads all data back and invokes the callback, until all data is
	// read back, or until the callback returns a non-nil error. The
	// implementation decides on the most optimal strategy.
	Range(ctx context.Context, cb PersistCallbackFn) error

	io.Closer
}
