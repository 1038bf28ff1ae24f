package models

import "time"

// Schedule start types understood by the ad server.
const (
	StartImmediately = "IMMEDIATELY" // Start serving as soon as the line item is approved.
	StartUseDate     = "USE_START_DATE_TIME"
)

// Delivery and goal constants applied to every provisioned line item.
const (
	DeliveryEvenly    = "EVENLY"
	LineItemStandard  = "STANDARD"
	CostTypeCPM       = "CPM"
	GoalLifetime      = "LIFETIME"
	TimeUnitLifetime  = "LIFETIME"
	DefaultCurrency   = "INR"
	DefaultImpression = 100000
)

// SupportedCurrencies lists the currencies a line item may be billed in.
// Anything else falls back to DefaultCurrency.
var SupportedCurrencies = []string{"INR", "USD", "CAD", "AED"}

// CreativePlaceholder declares a creative size the line item expects.
// TargetingName ties the placeholder to a CreativeTargeting; an empty name
// means any creative of that size may serve anywhere the line item serves.
type CreativePlaceholder struct {
	Size          Size   `json:"size"`
	TargetingName string `json:"targeting_name,omitempty"`
}

// CreativeTargeting restricts creatives with a given targeting name to a set of placements.
type CreativeTargeting struct {
	Name         string   `json:"name"`
	PlacementIDs []string `json:"placement_ids"`
}

// Schedule is the flight of a line item. When StartType is StartImmediately, Start is ignored.
type Schedule struct {
	StartType string         `json:"start_type"`
	Start     time.Time      `json:"start,omitempty"`
	End       time.Time      `json:"end"`
	Location  *time.Location `json:"-"`
}

// FrequencyCap limits exposures per viewer over a time unit.
type FrequencyCap struct {
	MaxImpressions int    `json:"max_impressions"`
	TimeUnit       string `json:"time_unit"`
}

// Money is an amount in micro units of a currency.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	MicroAmount  int64  `json:"micro_amount"`
}

// LineItemDraft is the payload submitted to the ad server's create call.
// Only the naming protocol changes it, and only on a local copy, before submission.
type LineItemDraft struct {
	Name                 string                `json:"name"`
	OrderID              string                `json:"order_id"`
	GeoIDs               []string              `json:"geo_ids"`
	PlacementIDs         []string              `json:"placement_ids"`
	CreativePlaceholders []CreativePlaceholder `json:"creative_placeholders"`
	CreativeTargetings   []CreativeTargeting   `json:"creative_targetings"`
	Schedule             Schedule              `json:"schedule"`
	DeliveryRateType     string                `json:"delivery_rate_type"`
	LineItemType         string                `json:"line_item_type"`
	CostType             string                `json:"cost_type"`
	CostPerUnit          Money                 `json:"cost_per_unit"`
	GoalType             string                `json:"goal_type"`
	GoalUnits            int64                 `json:"goal_units"`
	FrequencyCaps        []FrequencyCap        `json:"frequency_caps,omitempty"`
	AllowOverbook        bool                  `json:"allow_overbook"`
	SkipInventoryCheck   bool                  `json:"skip_inventory_check"`
}

// WithName returns a copy of the draft carrying name.
func (d LineItemDraft) WithName(name string) LineItemDraft {
	d.Name = name
	return d
}
