package services

import (
	"context"
	"errors"
	"time"

	"github.com/Dynom/TySug/finder"
	"github.com/sirupsen/logrus"

	"github.com/mxverify/mxverify/cmd/web/hitlist"
	"github.com/mxverify/mxverify/types"
	"github.com/mxverify/mxverify/verifier"
)

// VerifyFn is the verification callable the service builds on, matching the
// signature of verifier.EmailVerifier.Verify.
type VerifyFn func(ctx context.Context, emailAddress string) (verifier.Result, error)

func NewVerifyService(cache *hitlist.HitList, f *finder.Finder, verify VerifyFn, logger *logrus.Logger) VerifySvc {
	return VerifySvc{
		cache:  cache,
		finder: f,
		verify: verify,
		logger: logger.WithField("svc", "verify"),
	}
}

type VerifySvc struct {
	cache  *hitlist.HitList
	finder *finder.Finder
	verify VerifyFn
	logger *logrus.Entry
}

type VerifyResult struct {
	Verdict     verifier.Verdict
	Reason      string
	Diagnostics []string
	Alternative string
	CacheHitTTL time.Duration
}

// HandleVerifyRequest answers from the cache when it can and verifies
// otherwise, learning the outcome for subsequent requests.
func (c *VerifySvc) HandleVerifyRequest(ctx context.Context, email types.EmailParts, includeAlternatives bool) (VerifyResult, error) {
	var res VerifyResult
	var now = time.Now()

	hit, err := c.cache.GetForEmail(email.Address)
	if err == nil {
		res.Verdict = hit.Verdict
		res.CacheHitTTL = hit.ValidUntil.Sub(now)

	} else {
		if !errors.Is(err, hitlist.ErrNotPresent) {
			return res, err
		}

		result, err := c.verify(ctx, email.Address)
		if err != nil {
			return res, err
		}

		res.Verdict = result.Verdict
		res.Reason, res.Diagnostics = describeFailure(result.Failure)

		if err := c.cache.AddEmailAddress(email.Address, result.Verdict); err != nil {
			return res, err
		}

		// Update finder with positive results
		if result.Verdict == verifier.Valid {
			c.finder.Refresh(c.cache.GetValidAndUsageSortedDomains())
		}
	}

	if includeAlternatives {
		alt, score, exact := c.finder.FindCtx(ctx, email.Domain)

		c.logger.WithContext(ctx).WithFields(logrus.Fields{
			"alt":   alt,
			"score": score,
			"exact": exact,
		}).Debug("Used Finder")

		if !exact && score > finder.WorstScoreValue {
			res.Alternative = types.NewEmailFromParts(email.Local, alt).Address
		}
	}

	return res, nil
}

// describeFailure flattens a verification failure into the transport shape,
// a compact reason plus the per-host probe trace.
func describeFailure(failure *verifier.Error) (reason string, diagnostics []string) {
	if failure == nil {
		return "", nil
	}

	reason = string(failure.Category)
	switch failure.Category {
	case verifier.CategoryDNS:
		reason += ":" + string(failure.DNSKind)
	case verifier.CategorySMTP:
		reason += ":" + string(failure.SMTPKind)
	}

	for _, d := range failure.Diagnostics {
		diagnostics = append(diagnostics, d.String())
	}

	return reason, diagnostics
}
