package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceType identifies the product line a plan or addon belongs to.
type ServiceType string

const (
	ServiceBroadband ServiceType = "broadband"
	ServiceSIM       ServiceType = "sim"
	ServiceLandline  ServiceType = "landline"
)

// ServiceTypes lists the product lines in display order.
func ServiceTypes() []ServiceType {
	return []ServiceType{ServiceBroadband, ServiceSIM, ServiceLandline}
}

// ParseServiceType normalises raw input into a known service type.
func ParseServiceType(raw string) (ServiceType, bool) {
	switch ServiceType(strings.ToLower(strings.TrimSpace(raw))) {
	case ServiceBroadband:
		return ServiceBroadband, true
	case ServiceSIM, "sim-plans":
		return ServiceSIM, true
	case ServiceLandline:
		return ServiceLandline, true
	}
	return "", false
}

// Plan is a purchasable monthly service tier.
type Plan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ServiceType ServiceType     `json:"serviceType"`
	Price       decimal.Decimal `json:"price"`
	Features    []string        `json:"features"`
	Popular     bool            `json:"popular"`
}

// PriceNum returns the monthly price as a float for display code that needs one.
func (p Plan) PriceNum() float64 {
	return p.Price.InexactFloat64()
}

// Addon is an optional priced feature attached to a service type.
type Addon struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ServiceType ServiceType     `json:"serviceType"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
}

func gbp(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

var plans = []Plan{
	{ID: "bb-fibre-36", Name: "Fibre 36", ServiceType: ServiceBroadband, Price: gbp("22.99"),
		Features: []string{"36Mb average download", "Unlimited usage", "Free router", "18 month contract"}},
	{ID: "bb-fibre-67", Name: "Fibre 67", ServiceType: ServiceBroadband, Price: gbp("26.99"), Popular: true,
		Features: []string{"67Mb average download", "Unlimited usage", "Free router", "18 month contract"}},
	{ID: "bb-full-fibre-150", Name: "Full Fibre 150", ServiceType: ServiceBroadband, Price: gbp("29.99"),
		Features: []string{"150Mb average download", "Unlimited usage", "Wi-Fi 6 router", "24 month contract"}},
	{ID: "bb-full-fibre-500", Name: "Full Fibre 500", ServiceType: ServiceBroadband, Price: gbp("39.99"),
		Features: []string{"500Mb average download", "Unlimited usage", "Wi-Fi 6 router", "Static IP ready"}},
	{ID: "sim-10gb", Name: "SIM 10GB", ServiceType: ServiceSIM, Price: gbp("7.99"),
		Features: []string{"10GB data", "Unlimited minutes and texts", "5G ready", "30 day rolling"}},
	{ID: "sim-30gb", Name: "SIM 30GB", ServiceType: ServiceSIM, Price: gbp("10.99"), Popular: true,
		Features: []string{"30GB data", "Unlimited minutes and texts", "5G ready", "EU roaming included"}},
	{ID: "sim-unlimited", Name: "SIM Unlimited", ServiceType: ServiceSIM, Price: gbp("18.99"),
		Features: []string{"Unlimited data", "Unlimited minutes and texts", "5G ready", "EU roaming included"}},
	{ID: "ll-evening-weekend", Name: "Evening & Weekend", ServiceType: ServiceLandline, Price: gbp("9.99"),
		Features: []string{"Free evening and weekend UK calls", "Caller display", "Keep your number"}},
	{ID: "ll-anytime-uk", Name: "Anytime UK", ServiceType: ServiceLandline, Price: gbp("14.99"), Popular: true,
		Features: []string{"Unlimited UK landline and mobile calls", "Caller display", "Voicemail"}},
	{ID: "ll-international", Name: "Anytime International", ServiceType: ServiceLandline, Price: gbp("19.99"),
		Features: []string{"Unlimited UK calls", "300 international minutes", "Caller display", "Voicemail"}},
}

var addons = []Addon{
	{ID: "addon-static-ip", Name: "Static IP", Price: gbp("5.00"), ServiceType: ServiceBroadband,
		Description: "A fixed public IPv4 address", Icon: "globe"},
	{ID: "addon-mesh-wifi", Name: "Mesh Wi-Fi booster", Price: gbp("4.99"), ServiceType: ServiceBroadband,
		Description: "Whole-home coverage with a mesh disc", Icon: "wifi"},
	{ID: "addon-eu-roaming", Name: "Worldwide roaming", Price: gbp("2.99"), ServiceType: ServiceSIM,
		Description: "Use your allowance in 80 destinations", Icon: "plane"},
	{ID: "addon-intl-minutes", Name: "International minutes", Price: gbp("4.99"), ServiceType: ServiceSIM,
		Description: "500 minutes to 50 countries", Icon: "phone-outgoing"},
	{ID: "addon-caller-display", Name: "Caller display", Price: gbp("1.99"), ServiceType: ServiceLandline,
		Description: "See who is calling before you answer", Icon: "id-card"},
	{ID: "addon-call-barring", Name: "Call barring", Price: gbp("1.50"), ServiceType: ServiceLandline,
		Description: "Block premium and international numbers", Icon: "shield"},
	{ID: "addon-voicemail", Name: "Voicemail plus", Price: gbp("2.00"), ServiceType: ServiceLandline,
		Description: "Voicemail to email transcription", Icon: "voicemail"},
}

// Plans returns a copy of the full plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// Addons returns a copy of the full addon catalog.
func Addons() []Addon {
	out := make([]Addon, len(addons))
	copy(out, addons)
	return out
}

// PlansFor returns the plans of a single service type in catalog order.
func PlansFor(st ServiceType) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.ServiceType == st {
			out = append(out, p)
		}
	}
	return out
}

// AddonsFor returns the addons offered for a single service type.
func AddonsFor(st ServiceType) []Addon {
	out := make([]Addon, 0, len(addons))
	for _, a := range addons {
		if a.ServiceType == st {
			out = append(out, a)
		}
	}
	return out
}

// PlanByID looks up a plan by identifier.
func PlanByID(id string) (Plan, bool) {
	id = strings.TrimSpace(id)
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// AddonByID looks up an addon by identifier.
func AddonByID(id string) (Addon, bool) {
	id = strings.TrimSpace(id)
	for _, a := range addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}
