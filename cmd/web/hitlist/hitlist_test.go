package hitlist

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/minio/highwayhash"
	"github.com/mxverify/mxverify/testutil"
	"github.com/mxverify/mxverify/types"
	"github.com/mxverify/mxverify/verifier"
)

func TestHitList_RecipientsAreHashed(t *testing.T) {
	h, err := highwayhash.New128(bytes.Repeat([]byte{0x2a}, 32))
	if err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	hl := New(h, time.Minute)
	if err := hl.AddEmailAddress("jane.doe@example.org", verifier.Valid); err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	hit, err := hl.GetForEmail("jane.doe@example.org")
	if err != nil {
		t.Fatalf("expected the entry to resolve through the hasher, got %v", err)
	}

	if len(hit.Recipients) != 1 {
		t.Fatalf("expected a single recipient, got %d", len(hit.Recipients))
	}

	recipient := hit.Recipients[0]
	if bytes.Contains(recipient, []byte("jane.doe")) {
		t.Errorf("recipient %q leaks the plain local part", recipient)
	}

	if len(recipient) != 16 {
		t.Errorf("expected a 16 byte digest, got %d bytes", len(recipient))
	}

	if err := hl.AddEmailAddress("john.doe@example.org", verifier.Valid); err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	hit, err = hl.GetForEmail("john.doe@example.org")
	if err != nil {
		t.Fatalf("expected the entry to resolve through the hasher, got %v", err)
	}

	if len(hit.Recipients) != 2 {
		t.Errorf("expected distinct digests per local part, got %d recipients", len(hit.Recipients))
	}
}

func TestHitList_AddEmailAddress(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	if err := hl.AddEmailAddress("john@example.org", verifier.Valid); err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	hit, err := hl.GetForEmail("john@example.org")
	if err != nil {
		t.Fatalf("expected the entry to be present, got %v", err)
	}

	if hit.Verdict != verifier.Valid {
		t.Errorf("expected a Valid verdict, got %v", hit.Verdict)
	}

	if _, err := hl.GetForEmail("jane@example.org"); !errors.Is(err, ErrNotPresent) {
		t.Errorf("expected ErrNotPresent for an unseen recipient, got %v", err)
	}
}

func TestHitList_AddEmailAddressBadSyntax(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	for _, email := range []string{"", "no-at-sign", "@example.org", "john@"} {
		if err := hl.AddEmailAddress(email, verifier.Valid); err == nil {
			t.Errorf("expected an error for %q", email)
		}
	}
}

func TestHitList_Has(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)
	_ = hl.AddEmailAddress("john@example.org", verifier.Valid)

	parts, _ := types.NewEmailParts("john@example.org")
	domain, local := hl.Has(parts)
	if !domain || !local {
		t.Errorf("expected both the domain and the local part to be known, got %t/%t", domain, local)
	}

	parts, _ = types.NewEmailParts("jane@example.org")
	domain, local = hl.Has(parts)
	if !domain || local {
		t.Errorf("expected only the domain to be known, got %t/%t", domain, local)
	}

	parts, _ = types.NewEmailParts("jane@example.com")
	domain, local = hl.Has(parts)
	if domain || local {
		t.Errorf("expected nothing to be known, got %t/%t", domain, local)
	}
}

func TestHitList_Expiry(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	err := hl.AddEmailAddressDeadline("john@example.org", verifier.Valid, -time.Second)
	if err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	if _, err := hl.GetForEmail("john@example.org"); !errors.Is(err, ErrNotPresent) {
		t.Errorf("expected an expired entry to read as absent, got %v", err)
	}

	if domains := hl.GetValidAndUsageSortedDomains(); len(domains) != 0 {
		t.Errorf("expected no valid domains, got %v", domains)
	}
}

func TestHitList_GetValidAndUsageSortedDomains(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	for _, email := range []string{
		"a@popular.example.org",
		"b@popular.example.org",
		"c@popular.example.org",
		"a@modest.example.org",
		"b@modest.example.org",
	} {
		if err := hl.AddEmailAddress(email, verifier.Valid); err != nil {
			t.Fatalf("didn't expect an error, got %v", err)
		}
	}

	_ = hl.AddEmailAddress("a@rejected.example.org", verifier.Invalid)
	_ = hl.AddDomain("undecided.example.org", verifier.Unknown)

	got := hl.GetValidAndUsageSortedDomains()
	want := []string{"popular.example.org", "modest.example.org"}

	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestHitList_GetRecipientCount(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	_ = hl.AddEmailAddress("a@example.org", verifier.Valid)
	_ = hl.AddEmailAddress("b@example.org", verifier.Valid)

	// Duplicates shouldn't inflate the count
	_ = hl.AddEmailAddress("a@example.org", verifier.Valid)

	if got := hl.GetRecipientCount(Domain("example.org")); got != 2 {
		t.Errorf("expected 2 recipients, got %d", got)
	}

	if got := hl.GetRecipientCount(Domain("other.example.org")); got != 0 {
		t.Errorf("expected 0 recipients, got %d", got)
	}
}

func TestHitList_MergeVerdicts(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	_ = hl.AddEmailAddress("john@example.org", verifier.Valid)
	_ = hl.AddEmailAddress("john@example.org", verifier.Unknown)

	hit, err := hl.GetForEmail("john@example.org")
	if err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	if hit.Verdict != verifier.Valid {
		t.Errorf("an Unknown shouldn't downgrade a Valid verdict, got %v", hit.Verdict)
	}

	_ = hl.AddEmailAddress("john@example.org", verifier.Invalid)
	hit, _ = hl.GetForEmail("john@example.org")
	if hit.Verdict != verifier.Invalid {
		t.Errorf("a definitive verdict should replace the previous one, got %v", hit.Verdict)
	}
}

func TestHitList_GetDomainVerdict(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)
	_ = hl.AddDomain("example.org", verifier.Invalid)

	if verdict, ok := hl.GetDomainVerdict(Domain("example.org")); !ok || verdict != verifier.Invalid {
		t.Errorf("expected a known Invalid domain, got %v/%t", verdict, ok)
	}

	if verdict, ok := hl.GetDomainVerdict(Domain("other.example.org")); ok || verdict != verifier.Unknown {
		t.Errorf("expected an unseen domain to read as Unknown, got %v/%t", verdict, ok)
	}
}

func TestHitList_RegisterOnChange(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	var mu sync.Mutex
	var changes []ChangeType
	hl.RegisterOnChange(func(r Recipient, d Domain, verdict verifier.Verdict, change ChangeType) {
		mu.Lock()
		changes = append(changes, change)
		mu.Unlock()
	})

	_ = hl.AddEmailAddress("john@example.org", verifier.Valid)
	_ = hl.AddEmailAddress("john@example.org", verifier.Valid)
	hl.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(changes) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(changes))
	}

	var adds, updates int
	for _, c := range changes {
		switch c {
		case ChangeAdd:
			adds++
		case ChangeUpdate:
			updates++
		}
	}

	if adds != 1 || updates != 1 {
		t.Errorf("expected one add and one update, got %d/%d", adds, updates)
	}
}

func TestHitList_AddInternal(t *testing.T) {
	hl := New(&testutil.MockHasher{}, time.Minute)

	if err := hl.AddInternal(Domain("example.org"), Recipient("john"), verifier.Valid); err != nil {
		t.Fatalf("didn't expect an error, got %v", err)
	}

	// MockHasher hashes to the identity, so the plain local part matches
	if _, err := hl.GetForEmail("john@example.org"); err != nil {
		t.Errorf("expected the restored entry to resolve, got %v", err)
	}

	if err := hl.AddInternal(Domain(""), Recipient("john"), verifier.Valid); !errors.Is(err, ErrInvalidDomainSyntax) {
		t.Errorf("expected ErrInvalidDomainSyntax, got %v", err)
	}
}
