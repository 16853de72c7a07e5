package promo

import "sort"

// Resolve maps each requested product id to at most one active flash sale.
// When a product is eligible under several sales the earliest start time wins,
// with the lower sale id breaking ties. Promotions never stack.
//
// The input sales are assumed to be active at the pricing timestamp; callers
// obtain them from Repository.ListActive.
func Resolve(sales []FlashSale, productIDs []string) map[string]*FlashSale {
	if len(sales) == 0 || len(productIDs) == 0 {
		return nil
	}

	ordered := make([]*FlashSale, len(sales))
	for i := range sales {
		ordered[i] = &sales[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	eligible := make(map[string]*FlashSale)
	for _, s := range ordered {
		for _, pid := range s.ProductIDs {
			if _, taken := eligible[pid]; !taken {
				eligible[pid] = s
			}
		}
	}

	resolved := make(map[string]*FlashSale, len(productIDs))
	for _, pid := range productIDs {
		if s, ok := eligible[pid]; ok {
			resolved[pid] = s
		}
	}
	if len(resolved) == 0 {
		return nil
	}
	return resolved
}
