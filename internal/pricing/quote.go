package pricing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-telco/internal/catalog"
	"github.com/noah-isme/backend-telco/internal/common"
)

// ErrUnknownPlan is returned when a quote references a plan that is not in the catalog.
var ErrUnknownPlan = errors.New("pricing: unknown plan")

// Selection is the set of plans and addons a visitor has picked before checkout.
type Selection struct {
	PlanIDs  []string `json:"planIds" validate:"required,min=1,dive,required"`
	AddonIDs []string `json:"addonIds" validate:"omitempty,dive,required"`
}

// Quote is the full monthly price of a selection.
type Quote struct {
	Plans        []catalog.Plan `json:"plans"`
	Bundle       DiscountResult `json:"bundle"`
	AddonsTotal  Money          `json:"addonsTotal"`
	Addons       []AddonGroup   `json:"addons"`
	MonthlyTotal Money          `json:"monthlyTotal"`
}

// QuoteSelection resolves the selection against the catalog and prices it.
func QuoteSelection(sel Selection) (Quote, error) {
	plans := make([]catalog.Plan, 0, len(sel.PlanIDs))
	var missing []string
	for _, id := range sel.PlanIDs {
		p, ok := catalog.PlanByID(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		plans = append(plans, p)
	}
	if len(missing) > 0 {
		return Quote{}, common.NewValidationError(map[string]string{
			"planIds": "unknown plan: " + strings.Join(missing, ", "),
		}, ErrUnknownPlan)
	}

	available := catalog.Addons()
	chosen := make([]catalog.Addon, 0, len(sel.AddonIDs))
	for _, id := range sel.AddonIDs {
		if a, ok := catalog.AddonByID(id); ok {
			chosen = append(chosen, a)
		}
	}

	bundle := CalculateBundleDiscount(plans)
	addonsTotal := SumAddons(sel.AddonIDs, available)
	return Quote{
		Plans:        plans,
		Bundle:       bundle,
		AddonsTotal:  addonsTotal,
		Addons:       GroupAddonsByService(chosen),
		MonthlyTotal: bundle.DiscountedTotal.Add(addonsTotal),
	}, nil
}

// Handler exposes the public bundle quote endpoint.
type Handler struct{}

// Quote handles POST /api/v1/bundles/quote.
func (Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var sel Selection
	if err := common.DecodeJSON(r, &sel); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(sel); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := QuoteSelection(sel)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// AddonGroups handles GET /api/v1/addons/grouped.
func (Handler) AddonGroups(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": GroupAddonsByService(catalog.Addons())})
}
