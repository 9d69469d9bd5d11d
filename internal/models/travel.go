package models

// Fare tiers
const (
	FareFirst    = "first"
	FareStandard = "standard"
	FareSteerage = "steerage"
)

// FareTiers holds an optional price for each fare tier.
type FareTiers struct {
	First    *float64 `json:"first"`
	Standard *float64 `json:"standard"`
	Steerage *float64 `json:"steerage"`
}

// Get returns the price for tier, falling back to standard.
func (f FareTiers) Get(tier string) (float64, bool) {
	var v *float64
	switch tier {
	case FareFirst:
		v = f.First
	case FareSteerage:
		v = f.Steerage
	default:
		v = f.Standard
	}
	if v == nil && tier != FareStandard {
		v = f.Standard
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// TravelMode describes how fast and how expensive a mode of travel is.
type TravelMode struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	SpeedMph    *float64  `json:"speedMph"`
	PerDayMiles *float64  `json:"perDayMiles"`
	CostPerHour FareTiers `json:"costPerHour"`
	CostPerDay  FareTiers `json:"costPerDay"`
}

// Currency is a denomination with its conversion rate relative to the base
// unit (base unit has Conversion 1, smaller coins have larger values).
type Currency struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Conversion float64 `json:"conversion"`
}

// TravelEstimate is the computed time and cost of a route.
type TravelEstimate struct {
	RouteID   string         `json:"routeId,omitempty"`
	Mode      string         `json:"mode"`
	Tier      string         `json:"tier"`
	LengthPx  float64        `json:"lengthPx"`
	Miles     float64        `json:"miles"`
	Hours     float64        `json:"hours"`
	Days      float64        `json:"days"`
	Cost      float64        `json:"cost"` // base currency units
	Breakdown []CurrencyCoin `json:"breakdown,omitempty"`
	Display   string         `json:"display"`
}

// CurrencyCoin is one entry of a cost breakdown.
type CurrencyCoin struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

func floatPtr(v float64) *float64 { return &v }

// DefaultTravelModes returns the built-in travel modes.
func DefaultTravelModes() []TravelMode {
	return []TravelMode{
		{ID: "walking", Label: "Walking", SpeedMph: floatPtr(3), PerDayMiles: floatPtr(24)},
		{ID: "horse", Label: "Horse", SpeedMph: floatPtr(6), PerDayMiles: floatPtr(48),
			CostPerDay: FareTiers{Standard: floatPtr(2)}},
		{ID: "carriage", Label: "Carriage", SpeedMph: floatPtr(5), PerDayMiles: floatPtr(40),
			CostPerDay: FareTiers{First: floatPtr(5), Standard: floatPtr(3), Steerage: floatPtr(1)}},
		{ID: "ship", Label: "Sailing Ship", SpeedMph: floatPtr(3), PerDayMiles: floatPtr(72),
			CostPerDay: FareTiers{First: floatPtr(10), Standard: floatPtr(4), Steerage: floatPtr(0.5)}},
		{ID: "train", Label: "Train", SpeedMph: floatPtr(30), PerDayMiles: floatPtr(480),
			CostPerHour: FareTiers{First: floatPtr(2), Standard: floatPtr(0.5), Steerage: floatPtr(0.1)}},
	}
}

// DefaultCurrencies returns gp/sp/cp.
func DefaultCurrencies() []Currency {
	return []Currency{
		{Key: "gp", Label: "gp", Conversion: 1},
		{Key: "sp", Label: "sp", Conversion: 10},
		{Key: "cp", Label: "cp", Conversion: 100},
	}
}

// Global config keys
const (
	ConfigRouteSettings     = "routeSettings"
	ConfigTravelModes       = "travelModes"
	ConfigCurrencies        = "currencyConversions"
	ConfigIgnoredCurrencies = "ignoredCurrencies"
	ConfigPixelsPerMile     = "pixelsPerMile"
)
