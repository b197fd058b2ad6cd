// Package blacklist holds the set of domains considered undeliverable by
// policy, typically disposable-address providers, and keeps that set fresh
// from a published block list.
package blacklist

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// NewStore returns an empty store. Whitelisted domains are never reported as
// blacklisted, regardless of the list contents.
func NewStore(whitelist ...string) *Store {
	wl := make(map[string]struct{}, len(whitelist))
	for _, domain := range whitelist {
		wl[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}

	return &Store{
		domains:   make(map[string]struct{}),
		whitelist: wl,
	}
}

// Store is an in-memory domain set, safe for concurrent use. Lookups keep
// working during a swap, they see either the old or the new list.
type Store struct {
	mu        sync.RWMutex
	domains   map[string]struct{}
	whitelist map[string]struct{}
}

// IsBlacklisted reports whether domain is on the list. Matching is on the
// lowercased domain, the whitelist always wins.
func (s *Store) IsBlacklisted(domain string) bool {
	domain = strings.ToLower(domain)

	if _, ok := s.whitelist[domain]; ok {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.domains[domain]
	return ok
}

// Add puts one domain on the list.
func (s *Store) Add(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.domains[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
}

// Len returns the number of blacklisted domains.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.domains)
}

// ReadFrom replaces the entire list with the domains read from r, one per
// line. Blank lines and lines starting with # are skipped. The swap is
// atomic, a partial read error leaves the previous list untouched.
func (s *Store) ReadFrom(r io.Reader) (int64, error) {
	domains := make(map[string]struct{}, 2048)

	var read int64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		read += int64(len(scanner.Bytes())) + 1

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		domains[strings.ToLower(line)] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return read, err
	}

	s.mu.Lock()
	s.domains = domains
	s.mu.Unlock()

	return read, nil
}

// WriteTo writes the list, one domain per line, in no particular order.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var written int64
	for domain := range s.domains {
		n, err := io.WriteString(w, domain+"\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
