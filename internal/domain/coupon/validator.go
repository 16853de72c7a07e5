package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a coupon code to a redeemable coupon at a given instant.
//
// Validation is read-only: the usage counter is consumed later, inside the
// order transaction, so a budget check can never go stale between validation
// and commit.
type Validator interface {
	Validate(ctx context.Context, tenantID, code string, at time.Time) (*Coupon, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository,
// optionally short-circuiting unknown codes through a CodeFilter.
type RepoValidator struct {
	repo   Repository
	filter *CodeFilter
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
// The filter may be nil, in which case every lookup hits the repository.
func NewRepoValidator(repo Repository, filter *CodeFilter) *RepoValidator {
	return &RepoValidator{repo: repo, filter: filter}
}

// Validate looks up the coupon for the given code and checks its validity
// window and remaining-use budget against at.
func (v *RepoValidator) Validate(ctx context.Context, tenantID, code string, at time.Time) (*Coupon, error) {
	if v.filter != nil && !v.filter.MayContain(tenantID, code) {
		return nil, ErrInvalid
	}

	c, err := v.repo.FindByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, ErrInvalid
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ValidFrom != nil && at.Before(*c.ValidFrom) {
		return nil, ErrExpired
	}
	if c.ValidUntil != nil && at.After(*c.ValidUntil) {
		return nil, ErrExpired
	}

	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return nil, ErrExhausted
	}

	return c, nil
}
