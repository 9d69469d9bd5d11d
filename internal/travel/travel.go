// Package travel estimates how long a route takes and what it costs for a
// given mode of travel and fare tier.
package travel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jengzang/routecast/internal/models"
)

// HoursPerDay is the length of a travel day for modes that only know a
// per-day distance or a per-hour speed.
const HoursPerDay = 8

var (
	ErrUnknownMode  = errors.New("unknown travel mode")
	ErrInvalidScale = errors.New("pixels per mile must be positive")
	ErrNoSpeed      = errors.New("travel mode has neither speed nor daily distance")
)

// FindMode returns the mode with id, matched case-insensitively.
func FindMode(modes []models.TravelMode, id string) (models.TravelMode, bool) {
	for _, m := range modes {
		if strings.EqualFold(m.ID, id) {
			return m, true
		}
	}
	return models.TravelMode{}, false
}

func positive(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return 0, false
	}
	return *v, true
}

// Request is the input of Estimate.
type Request struct {
	LengthPx      float64
	PixelsPerMile float64
	Mode          models.TravelMode
	Tier          string
	Currencies    []models.Currency
	Ignored       []string
}

// Estimate computes time and cost. Hourly fares are charged per hour
// travelled; daily fares per started day.
func Estimate(req Request) (models.TravelEstimate, error) {
	if !(req.PixelsPerMile > 0) || math.IsInf(req.PixelsPerMile, 0) {
		return models.TravelEstimate{}, ErrInvalidScale
	}
	tier := req.Tier
	if tier == "" {
		tier = models.FareStandard
	}
	miles := math.Max(0, req.LengthPx) / req.PixelsPerMile

	speed, hasSpeed := positive(req.Mode.SpeedMph)
	perDay, hasPerDay := positive(req.Mode.PerDayMiles)
	var hours, days float64
	switch {
	case hasSpeed && hasPerDay:
		hours = miles / speed
		days = miles / perDay
	case hasSpeed:
		hours = miles / speed
		days = hours / HoursPerDay
	case hasPerDay:
		days = miles / perDay
		hours = days * HoursPerDay
	default:
		return models.TravelEstimate{}, fmt.Errorf("%w: %s", ErrNoSpeed, req.Mode.ID)
	}

	var cost float64
	if rate, ok := req.Mode.CostPerHour.Get(tier); ok {
		cost += rate * hours
	}
	if rate, ok := req.Mode.CostPerDay.Get(tier); ok {
		cost += rate * math.Ceil(days-1e-9)
	}

	breakdown := Breakdown(cost, req.Currencies, req.Ignored)
	return models.TravelEstimate{
		Mode:      req.Mode.ID,
		Tier:      tier,
		LengthPx:  req.LengthPx,
		Miles:     miles,
		Hours:     hours,
		Days:      days,
		Cost:      cost,
		Breakdown: breakdown,
		Display:   Format(breakdown, req.Currencies),
	}, nil
}

// ValidCurrencies drops entries without a key or a positive conversion and
// sorts the rest from the most valuable denomination down.
func ValidCurrencies(currencies []models.Currency) []models.Currency {
	out := make([]models.Currency, 0, len(currencies))
	for _, c := range currencies {
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" || !(c.Conversion > 0) || math.IsInf(c.Conversion, 0) {
			continue
		}
		if strings.TrimSpace(c.Label) == "" {
			c.Label = c.Key
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Conversion < out[j].Conversion })
	return out
}

// Breakdown splits cost (in base units) into denominations, most valuable
// first, skipping ignored ones. The remainder lands in the smallest
// denomination kept, rounded to a whole coin.
func Breakdown(cost float64, currencies []models.Currency, ignored []string) []models.CurrencyCoin {
	skip := make(map[string]bool, len(ignored))
	for _, k := range ignored {
		skip[strings.ToLower(strings.TrimSpace(k))] = true
	}
	var kept []models.Currency
	for _, c := range ValidCurrencies(currencies) {
		if !skip[strings.ToLower(c.Key)] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 || !(cost > 0) {
		return nil
	}

	smallest := kept[len(kept)-1].Conversion
	remaining := math.Round(cost * smallest)
	var out []models.CurrencyCoin
	for _, c := range kept {
		unit := smallest / c.Conversion
		n := math.Floor(remaining/unit + 1e-9)
		if n <= 0 {
			continue
		}
		remaining -= n * unit
		out = append(out, models.CurrencyCoin{Key: c.Key, Label: c.Label, Amount: int64(n)})
	}
	return out
}

// Format renders a breakdown as "2 gp 5 sp". An empty breakdown is shown as
// zero of the base currency.
func Format(coins []models.CurrencyCoin, currencies []models.Currency) string {
	if len(coins) == 0 {
		return "0 " + baseLabel(currencies)
	}
	parts := make([]string, len(coins))
	for i, c := range coins {
		parts[i] = fmt.Sprintf("%d %s", c.Amount, c.Label)
	}
	return strings.Join(parts, " ")
}

// baseLabel is the label of the currency with conversion 1, else of the
// most valuable one.
func baseLabel(currencies []models.Currency) string {
	valid := ValidCurrencies(currencies)
	for _, c := range valid {
		if c.Conversion == 1 {
			return c.Label
		}
	}
	if len(valid) > 0 {
		return valid[0].Label
	}
	return "gp"
}
