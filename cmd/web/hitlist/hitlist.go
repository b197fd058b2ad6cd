// Package hitlist caches verification verdicts per domain and recipient, so
// repeated lookups don't hammer remote mail systems. Recipient local parts
// are stored hashed, the cache never holds plain addresses.
package hitlist

import (
	"bytes"
	"errors"
	"hash"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mxverify/mxverify/types"
	"github.com/mxverify/mxverify/verifier"
)

var (
	ErrInvalidDomainSyntax = errors.New("invalid domain syntax")
	ErrNotPresent          = errors.New("value not present")
)

type Hits map[Domain]Hit
type Domain string
type Hit struct {
	Recipients []Recipient
	ValidUntil time.Time
	Verdict    verifier.Verdict
}

type Recipient []byte

func (r Recipient) String() string {
	return string(r)
}

type ChangeType uint8

const (
	ChangeAdd ChangeType = iota
	ChangeUpdate
)

type OnChangeFn func(r Recipient, d Domain, verdict verifier.Verdict, change ChangeType)

func New(h hash.Hash, ttl time.Duration) *HitList {
	l := HitList{
		hits: make(Hits),
		h:    h,
		ttl:  ttl,
	}

	return &l
}

type HitList struct {
	hits      Hits
	ttl       time.Duration
	lock      sync.RWMutex
	h         hash.Hash
	hashMu    sync.Mutex
	onChange  []OnChangeFn
	changeMu  sync.Mutex
	callbacks sync.WaitGroup
}

// RegisterOnChange adds a callback invoked on every mutation, the persistence
// layer uses it to write through. Callbacks run asynchronously.
func (hl *HitList) RegisterOnChange(fn OnChangeFn) {
	hl.changeMu.Lock()
	hl.onChange = append(hl.onChange, fn)
	hl.changeMu.Unlock()
}

func (hl *HitList) notify(r Recipient, d Domain, verdict verifier.Verdict, change ChangeType) {
	hl.changeMu.Lock()
	fns := hl.onChange
	hl.changeMu.Unlock()

	for _, fn := range fns {
		fn := fn
		hl.callbacks.Add(1)
		go func() {
			defer hl.callbacks.Done()
			fn(r, d, verdict, change)
		}()
	}
}

// Wait blocks until all in-flight change callbacks have completed.
func (hl *HitList) Wait() {
	hl.callbacks.Wait()
}

// Has returns true if HitList knows about (part of) the argument
func (hl *HitList) Has(parts types.EmailParts) (domain, local bool) {
	var hit Hit

	inputDomain := Domain(strings.ToLower(parts.Domain))

	hl.lock.RLock()
	defer hl.lock.RUnlock()

	if hit, domain = hl.hits[inputDomain]; domain {
		recipient := hl.hashLocal(parts.Local)
		for _, v := range hit.Recipients {
			if bytes.Equal(recipient, v) {
				local = true
				return
			}
		}
	}

	return
}

// GetForEmail returns the cached hit for an address. ErrNotPresent covers
// both an unseen address and an expired entry.
func (hl *HitList) GetForEmail(email string) (Hit, error) {
	parts, err := types.NewEmailParts(strings.ToLower(email))
	if err != nil {
		return Hit{}, err
	}

	recipient := hl.hashLocal(parts.Local)

	hl.lock.RLock()
	defer hl.lock.RUnlock()

	hit, ok := hl.hits[Domain(parts.Domain)]
	if !ok || !hit.ValidUntil.After(time.Now()) {
		return Hit{}, ErrNotPresent
	}

	for _, v := range hit.Recipients {
		if bytes.Equal(recipient, v) {
			return hit, nil
		}
	}

	return Hit{}, ErrNotPresent
}

func (hl *HitList) GetDomainVerdict(d Domain) (verifier.Verdict, bool) {
	hl.lock.RLock()
	hit, ok := hl.hits[d]
	hl.lock.RUnlock()

	if ok {
		return hit.Verdict, ok
	}

	return verifier.Unknown, ok
}

// GetRecipientCount returns the number of recipients known for a domain.
func (hl *HitList) GetRecipientCount(d Domain) uint64 {
	hl.lock.RLock()
	defer hl.lock.RUnlock()

	if hit, ok := hl.hits[d]; ok {
		return uint64(len(hit.Recipients))
	}

	return 0
}

// GetValidAndUsageSortedDomains returns the domains with a Valid verdict,
// sorted by their associated recipients (high>low)
func (hl *HitList) GetValidAndUsageSortedDomains() []string {
	hl.lock.RLock()
	var domains = getValidDomains(hl.hits)
	hl.lock.RUnlock()

	return domains
}

func (hl *HitList) Add(parts types.EmailParts, verdict verifier.Verdict) error {
	if parts.Local == "" {
		return hl.AddDomain(parts.Domain, verdict)
	}

	return hl.AddEmailAddress(parts.Address, verdict)
}

// AddInternal records a previously hashed recipient, the persistence layer
// uses it to restore state without learning the plain local part.
func (hl *HitList) AddInternal(d Domain, r Recipient, verdict verifier.Verdict) error {
	domain := Domain(strings.ToLower(string(d)))
	if len(domain) == 0 {
		return ErrInvalidDomainSyntax
	}

	hl.lock.Lock()
	defer hl.lock.Unlock()

	hl.addRecipient(domain, r, verdict, hl.ttl)
	return nil
}

// AddEmailAddressDeadline Same as AddEmailAddress, but allows for a custom
// TTL. Duration shouldn't be negative.
func (hl *HitList) AddEmailAddressDeadline(email string, verdict verifier.Verdict, duration time.Duration) error {
	parts, err := types.NewEmailParts(strings.ToLower(email))
	if err != nil {
		return err
	}

	if len(parts.Domain) == 0 || len(parts.Local) == 0 {
		return ErrInvalidDomainSyntax
	}

	safeLocal := hl.hashLocal(parts.Local)
	domain := Domain(parts.Domain)

	hl.lock.Lock()
	change := hl.addRecipient(domain, safeLocal, verdict, duration)
	hl.lock.Unlock()

	hl.notify(safeLocal, domain, verdict, change)
	return nil
}

// AddEmailAddress records the verdict for a particular e-mail address.
func (hl *HitList) AddEmailAddress(email string, verdict verifier.Verdict) error {
	return hl.AddEmailAddressDeadline(email, verdict, hl.ttl)
}

// AddDomain learns of a domain and its validity.
func (hl *HitList) AddDomain(d string, verdict verifier.Verdict) error {
	var domain = Domain(strings.ToLower(d))

	if len(domain) == 0 {
		return ErrInvalidDomainSyntax
	}

	hl.lock.Lock()
	hit, ok := hl.hits[domain]
	if !ok {
		hl.hits[domain] = Hit{
			Recipients: []Recipient{},
			ValidUntil: time.Now().Add(hl.ttl),
			Verdict:    verdict,
		}
	} else {
		hit.Verdict = mergeVerdicts(hit.Verdict, verdict)
		hl.hits[domain] = hit
	}
	hl.lock.Unlock()

	change := ChangeUpdate
	if !ok {
		change = ChangeAdd
	}

	hl.notify(nil, domain, verdict, change)
	return nil
}

// addRecipient mutates hits, the write lock must be held.
func (hl *HitList) addRecipient(domain Domain, safeLocal Recipient, verdict verifier.Verdict, duration time.Duration) ChangeType {
	var now = time.Now()

	dh, ok := hl.hits[domain]
	if !ok {
		hl.hits[domain] = Hit{
			Recipients: []Recipient{safeLocal},
			ValidUntil: now.Add(duration),
			Verdict:    verdict,
		}

		return ChangeAdd
	}

	dh.Verdict = mergeVerdicts(dh.Verdict, verdict)
	dh.ValidUntil = now.Add(duration)

	for _, known := range dh.Recipients {
		if bytes.Equal(known, safeLocal) {
			hl.hits[domain] = dh
			return ChangeUpdate
		}
	}

	dh.Recipients = append(dh.Recipients, safeLocal)
	hl.hits[domain] = dh

	return ChangeAdd
}

// hashLocal digests the lowercased local part. hash.Hash is stateful, the
// dedicated mutex keeps concurrent readers from interleaving writes.
func (hl *HitList) hashLocal(local string) Recipient {
	hl.hashMu.Lock()
	defer hl.hashMu.Unlock()

	hl.h.Reset()
	_, _ = hl.h.Write([]byte(strings.ToLower(local)))

	return hl.h.Sum(nil)
}

// mergeVerdicts keeps the definitive answer, an Unknown never downgrades a
// Valid or Invalid.
func mergeVerdicts(current, next verifier.Verdict) verifier.Verdict {
	if next == verifier.Unknown {
		return current
	}

	return next
}

// getValidDomains returns domains with a Valid verdict, sorted by their
// recipients in descending order
func getValidDomains(hits Hits) []string {
	type stats struct {
		Domain     string
		Recipients int64
	}

	var sortStats = make([]stats, 0, len(hits))

	var now = time.Now()
	for domain, details := range hits {
		if details.Verdict != verifier.Valid {
			continue
		}

		if !details.ValidUntil.After(now) {
			continue
		}

		sortStats = append(sortStats, stats{
			Domain:     string(domain),
			Recipients: int64(len(details.Recipients)),
		})
	}

	// Sorting on recipient count in Descending order
	sort.Slice(sortStats, func(i, j int) bool {
		return sortStats[i].Recipients > sortStats[j].Recipients
	})

	result := make([]string, 0, len(sortStats))
	for _, stats := range sortStats {
		result = append(result, stats.Domain)
	}

	return result
}
