package coupon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	filterCapacity = 1_000_000
	filterFPR      = 0.001
)

// CodeFilter is a bloom-filter negative cache over active coupon codes. It
// rejects codes that certainly do not exist without touching the database;
// a positive answer still requires the authoritative repository lookup.
//
// The filter is rebuilt periodically so codes created after the last rebuild
// are only delayed by at most one refresh interval, never rejected forever.
// Until the first successful build the filter answers "maybe" for everything.
type CodeFilter struct {
	repo Repository

	mu      sync.RWMutex
	filters map[string]*bloom.BloomFilter
	built   bool
}

// NewCodeFilter creates an empty CodeFilter over the given repository.
func NewCodeFilter(repo Repository) *CodeFilter {
	return &CodeFilter{
		repo:    repo,
		filters: make(map[string]*bloom.BloomFilter),
	}
}

// MayContain reports whether the code may exist for the tenant. False means
// the code definitely does not exist (as of the last rebuild).
func (f *CodeFilter) MayContain(tenantID, code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.built {
		return true
	}
	bf, ok := f.filters[tenantID]
	if !ok {
		// Tenant had no active coupons at build time.
		return false
	}
	// Codes match case-insensitively, so the filter holds uppercased codes.
	return bf.TestString(strings.ToUpper(code))
}

// Rebuild replaces the per-tenant filters from the repository's current codes.
func (f *CodeFilter) Rebuild(ctx context.Context, tenantIDs []string) error {
	fresh := make(map[string]*bloom.BloomFilter, len(tenantIDs))
	for _, tenant := range tenantIDs {
		codes, err := f.repo.ListCodes(ctx, tenant)
		if err != nil {
			return errors.Wrapf(err, "list codes for tenant %s", tenant)
		}
		if len(codes) == 0 {
			continue
		}
		bf := bloom.NewWithEstimates(filterCapacity, filterFPR)
		for _, code := range codes {
			bf.AddString(strings.ToUpper(code))
		}
		fresh[tenant] = bf
	}

	f.mu.Lock()
	f.filters = fresh
	f.built = true
	f.mu.Unlock()
	return nil
}

// Run rebuilds the filter on the given interval until ctx is cancelled.
// tenants supplies the tenant set for each rebuild.
func (f *CodeFilter) Run(ctx context.Context, interval time.Duration, tenants func(context.Context) ([]string, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// On failure the previous filter generation keeps serving and the
		// next tick retries.
		if ids, err := tenants(ctx); err == nil {
			_ = f.Rebuild(ctx, ids)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
