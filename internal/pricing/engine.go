package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/catalog"
)

// Money represents a GBP amount.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// bundleTiers maps the number of distinct service types in a bundle to its
// percentage discount. Counts above the last entry use the last entry.
var bundleTiers = []int64{0, 0, 10, 15}

// DiscountResult summarises a bundle price.
type DiscountResult struct {
	OriginalTotal      Money `json:"originalTotal"`
	DiscountPercentage int64 `json:"discountPercentage"`
	DiscountedTotal    Money `json:"discountedTotal"`
	Savings            Money `json:"savings"`
}

// DiscountPercentageFor returns the bundle tier for the given number of
// distinct services.
func DiscountPercentageFor(services int) int64 {
	if services <= 0 {
		return 0
	}
	if services >= len(bundleTiers) {
		return bundleTiers[len(bundleTiers)-1]
	}
	return bundleTiers[services]
}

// CalculateBundleDiscount prices a set of selected plans. It is total over its
// input: an empty selection yields zeros.
func CalculateBundleDiscount(plans []catalog.Plan) DiscountResult {
	original := decimal.Zero
	services := make(map[catalog.ServiceType]struct{}, len(plans))
	for _, p := range plans {
		original = original.Add(p.Price)
		services[p.ServiceType] = struct{}{}
	}
	pct := DiscountPercentageFor(len(services))
	factor := hundred.Sub(decimal.NewFromInt(pct)).Div(hundred)
	discounted := original.Mul(factor).Round(2)
	return DiscountResult{
		OriginalTotal:      original,
		DiscountPercentage: pct,
		DiscountedTotal:    discounted,
		Savings:            original.Sub(discounted),
	}
}

// SumAddons totals the prices of the selected addon ids. Ids that are not in
// available contribute nothing. Repeated ids are counted once per occurrence.
func SumAddons(selectedIDs []string, available []catalog.Addon) Money {
	total := decimal.Zero
	for _, id := range selectedIDs {
		for _, a := range available {
			if a.ID == id {
				total = total.Add(a.Price)
				break
			}
		}
	}
	return total
}

// AddonGroup is the set of addons belonging to one service type.
type AddonGroup struct {
	ServiceType catalog.ServiceType `json:"serviceType"`
	Addons      []catalog.Addon     `json:"addons"`
}

// GroupAddonsByService partitions addons by service type, keeping groups in
// first-seen order and addons in input order within each group.
func GroupAddonsByService(addons []catalog.Addon) []AddonGroup {
	groups := make([]AddonGroup, 0, 3)
	index := make(map[catalog.ServiceType]int, 3)
	for _, a := range addons {
		i, ok := index[a.ServiceType]
		if !ok {
			i = len(groups)
			index[a.ServiceType] = i
			groups = append(groups, AddonGroup{ServiceType: a.ServiceType})
		}
		groups[i].Addons = append(groups[i].Addons, a)
	}
	return groups
}
