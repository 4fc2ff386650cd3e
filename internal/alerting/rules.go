package alerting

import (
	"fmt"
	"math"

	"decision-workers/internal/models"

	"github.com/spf13/cast"
)

// Rule ids of the built-in rules.
const (
	RuleInventoryStockout = "inventory-stockout"
	RuleDemandSpike       = "demand-spike"
	RuleCampaignPacing    = "campaign-pacing"
	RuleROASDrop          = "roas-drop"
	RuleCompetitorPrice   = "competitor-price"
)

type builtinRule struct {
	id        string
	eventType string
	fn        RuleFunc
}

var builtinRules = []builtinRule{
	{RuleInventoryStockout, "inventory.stockout.warning", inventoryStockout},
	{RuleDemandSpike, "demand.spike.detected", demandSpike},
	{RuleCampaignPacing, "campaign.pacing.alert", campaignPacing},
	{RuleROASDrop, "roas.drop.detected", roasDrop},
	{RuleCompetitorPrice, "competitor.price.change", competitorPrice},
}

// tier maps values strictly above a bound to a severity. Tiers are checked top down.
type tier struct {
	above    float64
	severity models.Severity
}

func tiered(value float64, tiers []tier) models.Severity {
	for _, t := range tiers {
		if value > t.above {
			return t.severity
		}
	}
	return models.SeverityLow
}

// number reads a numeric data field. JSON numbers, Go numerics and numeric strings are
// accepted; a missing, null or non-numeric field is an error.
func number(ev models.Event, key string) (float64, error) {
	raw, ok := ev.Data[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("data.%s is missing", key)
	}
	if _, isBool := raw.(bool); isBool {
		return 0, fmt.Errorf("data.%s is not numeric", key)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("data.%s is not numeric: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("data.%s is not finite", key)
	}
	return v, nil
}

// optionalNumber is number for fields a rule can do without.
func optionalNumber(ev models.Event, key string) (float64, bool, error) {
	if raw, ok := ev.Data[key]; !ok || raw == nil {
		return 0, false, nil
	}
	v, err := number(ev, key)
	return v, err == nil, err
}

var demandTiers = []tier{
	{500, models.SeverityCritical},
	{200, models.SeverityHigh},
	{100, models.SeverityMedium},
}

func demandSpike(ev models.Event) (models.Severity, error) {
	deviation, err := number(ev, "deviation_pct")
	if err != nil {
		return "", err
	}
	return tiered(deviation, demandTiers), nil
}

func inventoryStockout(ev models.Event) (models.Severity, error) {
	days, err := number(ev, "days_to_stockout")
	if err != nil {
		return "", err
	}
	impact, _, err := optionalNumber(ev, "impact_revenue")
	if err != nil {
		return "", err
	}

	switch {
	case days <= 1:
		return models.SeverityCritical, nil
	case days <= 3, impact > 50000:
		return models.SeverityHigh, nil
	case days <= 7:
		return models.SeverityMedium, nil
	default:
		return models.SeverityLow, nil
	}
}

var pacingTiers = []tier{
	{150, models.SeverityHigh},
	{120, models.SeverityMedium},
}

func campaignPacing(ev models.Event) (models.Severity, error) {
	remaining, hasRemaining, err := optionalNumber(ev, "budget_remaining")
	if err != nil {
		return "", err
	}
	if hasRemaining && remaining <= 0 {
		return models.SeverityCritical, nil
	}

	pacing, err := number(ev, "pacing_pct")
	if err != nil {
		return "", err
	}
	return tiered(pacing, pacingTiers), nil
}

var roasTiers = []tier{
	{50, models.SeverityCritical},
	{30, models.SeverityHigh},
	{15, models.SeverityMedium},
}

func roasDrop(ev models.Event) (models.Severity, error) {
	drop, err := number(ev, "drop_pct")
	if err != nil {
		return "", err
	}
	return tiered(drop, roasTiers), nil
}

var priceTiers = []tier{
	{20, models.SeverityHigh},
	{10, models.SeverityMedium},
}

func competitorPrice(ev models.Event) (models.Severity, error) {
	change, err := number(ev, "change_pct")
	if err != nil {
		return "", err
	}
	return tiered(math.Abs(change), priceTiers), nil
}
