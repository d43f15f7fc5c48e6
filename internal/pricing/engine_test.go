package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/catalog"
)

func mustPlan(t *testing.T, id string) catalog.Plan {
	t.Helper()
	p, ok := catalog.PlanByID(id)
	require.True(t, ok, "plan %s missing from catalog", id)
	return p
}

func TestCalculateBundleDiscountBroadbandAndSIM(t *testing.T) {
	res := CalculateBundleDiscount([]catalog.Plan{
		mustPlan(t, "bb-fibre-36"),
		mustPlan(t, "sim-10gb"),
	})

	require.Equal(t, "30.98", res.OriginalTotal.StringFixed(2))
	require.EqualValues(t, 10, res.DiscountPercentage)
	require.Equal(t, "27.88", res.DiscountedTotal.StringFixed(2))
	require.Equal(t, "3.10", res.Savings.StringFixed(2))
}

func TestCalculateBundleDiscountEmpty(t *testing.T) {
	res := CalculateBundleDiscount(nil)
	require.True(t, res.OriginalTotal.IsZero())
	require.True(t, res.DiscountedTotal.IsZero())
	require.True(t, res.Savings.IsZero())
	require.Zero(t, res.DiscountPercentage)
}

func TestCalculateBundleDiscountSingleServiceHasNoDiscount(t *testing.T) {
	res := CalculateBundleDiscount([]catalog.Plan{
		mustPlan(t, "sim-10gb"),
		mustPlan(t, "sim-30gb"),
	})
	require.Zero(t, res.DiscountPercentage)
	require.True(t, res.OriginalTotal.Equal(res.DiscountedTotal))
	require.True(t, res.Savings.IsZero())
}

func TestCalculateBundleDiscountThreeServices(t *testing.T) {
	res := CalculateBundleDiscount([]catalog.Plan{
		mustPlan(t, "bb-fibre-67"),
		mustPlan(t, "sim-30gb"),
		mustPlan(t, "ll-anytime-uk"),
	})
	// 26.99 + 10.99 + 14.99 = 52.97; 85% = 45.0245
	require.EqualValues(t, 15, res.DiscountPercentage)
	require.Equal(t, "52.97", res.OriginalTotal.StringFixed(2))
	require.Equal(t, "45.02", res.DiscountedTotal.StringFixed(2))
	require.Equal(t, "7.95", res.Savings.StringFixed(2))
}

func TestCalculateBundleDiscountOrderInvariant(t *testing.T) {
	a := mustPlan(t, "bb-full-fibre-500")
	b := mustPlan(t, "sim-unlimited")
	c := mustPlan(t, "ll-international")

	want := CalculateBundleDiscount([]catalog.Plan{a, b, c})
	for _, perm := range [][]catalog.Plan{{a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}} {
		got := CalculateBundleDiscount(perm)
		require.True(t, want.OriginalTotal.Equal(got.OriginalTotal))
		require.True(t, want.DiscountedTotal.Equal(got.DiscountedTotal))
		require.Equal(t, want.DiscountPercentage, got.DiscountPercentage)
	}
}

func TestDiscountedNeverExceedsOriginal(t *testing.T) {
	plans := catalog.Plans()
	for i := range plans {
		for j := i; j < len(plans); j++ {
			res := CalculateBundleDiscount([]catalog.Plan{plans[i], plans[j]})
			require.True(t, res.DiscountedTotal.LessThanOrEqual(res.OriginalTotal), "%s + %s", plans[i].ID, plans[j].ID)
			require.True(t, res.OriginalTotal.Sub(res.DiscountedTotal).Equal(res.Savings))
		}
	}
}

func TestDiscountPercentageForIsMonotonic(t *testing.T) {
	prev := int64(-1)
	for n := 0; n <= 6; n++ {
		pct := DiscountPercentageFor(n)
		require.GreaterOrEqual(t, pct, prev)
		prev = pct
	}
}

func TestSumAddons(t *testing.T) {
	available := catalog.Addons()

	total := SumAddons([]string{"addon-static-ip", "addon-eu-roaming"}, available)
	require.Equal(t, "7.99", total.StringFixed(2))

	require.True(t, SumAddons(nil, available).IsZero())
	require.True(t, SumAddons([]string{"does-not-exist"}, available).IsZero())
}

func TestSumAddonsDuplicateIDsDoubleCount(t *testing.T) {
	available := []catalog.Addon{{ID: "x", Price: decimal.RequireFromString("2.50")}}
	total := SumAddons([]string{"x", "x"}, available)
	require.Equal(t, "5.00", total.StringFixed(2))
}

func TestGroupAddonsByServiceStable(t *testing.T) {
	addons := []catalog.Addon{
		{ID: "s1", ServiceType: catalog.ServiceSIM},
		{ID: "b1", ServiceType: catalog.ServiceBroadband},
		{ID: "s2", ServiceType: catalog.ServiceSIM},
		{ID: "l1", ServiceType: catalog.ServiceLandline},
		{ID: "b2", ServiceType: catalog.ServiceBroadband},
	}
	groups := GroupAddonsByService(addons)
	require.Len(t, groups, 3)
	require.Equal(t, catalog.ServiceSIM, groups[0].ServiceType)
	require.Equal(t, catalog.ServiceBroadband, groups[1].ServiceType)
	require.Equal(t, catalog.ServiceLandline, groups[2].ServiceType)
	require.Equal(t, "s1", groups[0].Addons[0].ID)
	require.Equal(t, "s2", groups[0].Addons[1].ID)
	require.Equal(t, "b2", groups[1].Addons[1].ID)
}
