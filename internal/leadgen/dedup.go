package leadgen

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// DuplicateProbe carries the keys a candidate is matched on.
type DuplicateProbe struct {
	PlaceID     string
	Phone       string
	CompanyName string
}

// DuplicateChecker applies the owner-scoped duplicate policy: a candidate is
// a duplicate when its place id, phone or company name matches an existing
// lead. Names are matched case-insensitively and are not scoped by city.
type DuplicateChecker struct {
	lookup LeadLookup
}

// NewDuplicateChecker creates a checker over lookup.
func NewDuplicateChecker(lookup LeadLookup) *DuplicateChecker {
	return &DuplicateChecker{lookup: lookup}
}

// IsDuplicate runs the three lookups concurrently. Empty keys are skipped. A
// match on any key wins even if another lookup failed.
func (d *DuplicateChecker) IsDuplicate(ctx context.Context, ownerID string, p DuplicateProbe) (bool, error) {
	var matched atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	check := func(fn func(ctx context.Context) (bool, error)) {
		g.Go(func() error {
			ok, err := fn(gctx)
			if err != nil {
				return err
			}
			if ok {
				matched.Store(true)
			}
			return nil
		})
	}

	if p.PlaceID != "" {
		check(func(ctx context.Context) (bool, error) {
			return d.lookup.LeadExistsByPlaceID(ctx, ownerID, p.PlaceID)
		})
	}
	if normalized := NormalizePhone(p.Phone); normalized != "" {
		tail := PhoneTail(normalized)
		check(func(ctx context.Context) (bool, error) {
			return d.lookup.LeadExistsByPhone(ctx, ownerID, normalized, tail)
		})
	}
	if key := NameKey(p.CompanyName); key != "" {
		check(func(ctx context.Context) (bool, error) {
			return d.lookup.LeadExistsByName(ctx, ownerID, key)
		})
	}

	err := g.Wait()
	if matched.Load() {
		return true, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "leadgen: duplicate check")
	}
	return false, nil
}
