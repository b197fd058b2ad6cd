package persist

import (
	"context"
	"sync"

	"github.com/mxverify/mxverify/cmd/web/hitlist"
	"github.com/mxverify/mxverify/verifier"
)

func NewMemory() Persister {
	return &Memory{
		m: &sync.Map{},
	}
}

type Memory struct {
	m *sync.Map
}

type memoryEntry struct {
	domain    hitlist.Domain
	recipient hitlist.Recipient
	verdict   verifier.Verdict
}

func (s *Memory) Store(ctx context.Context, d hitlist.Domain, r hitlist.Recipient, verdict verifier.Verdict) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Recipients are hashed bytes, the composite key keeps one entry per pair
	s.m.Store(string(r)+`@`+string(d), memoryEntry{
		domain:    d,
		recipient: r,
		verdict:   verdict,
	})

	return nil
}

func (s *Memory) Range(_ context.Context, cb PersistCallbackFn) error {
	s.m.Range(func(_, value interface{}) bool {
		entry, ok := value.(memoryEntry)
		if !ok {
			return true // Ignoring non-recoverable problem
		}

		err := cb(entry.domain, entry.recipient, entry.verdict)
		return err == nil
	})

	return nil
}

func (s *Memory) Close() error {
	return nil
}
