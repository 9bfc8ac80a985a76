// Package domain defines core data structures shared by the valuation and wallet services.
package domain

import (
	"github.com/shopspring/decimal"
)

// AssetValuation valuation fields of a single BOOM.
type AssetValuation struct {
	ID                      string          `json:"id"`
	BaseValue               decimal.Decimal `json:"base_value"`
	SocialValue             decimal.Decimal `json:"social_value"`
	TotalValue              decimal.Decimal `json:"total_value"`
	MarketCapitalization    decimal.Decimal `json:"market_capitalization"`
	EffectiveCapitalization decimal.Decimal `json:"effective_capitalization"`
	CapitalizationUnits     int64           `json:"capitalization_units"`
	RedistributionPool      decimal.Decimal `json:"redistribution_pool"`
	PalierThreshold         decimal.Decimal `json:"palier_threshold"`
}

// valuationTolerance is the absolute drift accepted between total and base+social.
var valuationTolerance = decimal.New(1, -4)

// NewAssetValuation builds a valuation from partially known fields.
// A nil base is re-derived as total-social, a nil total as base+social.
// When both are present and disagree the server total wins and base is kept as sent.
// Negative amounts are clamped to zero.
func NewAssetValuation(id string, base, social, total *decimal.Decimal) AssetValuation {
	v := AssetValuation{ID: id}
	if social != nil {
		v.SocialValue = nonNegative(*social)
	}

	switch {
	case base != nil && total != nil:
		v.BaseValue = nonNegative(*base)
		v.TotalValue = nonNegative(*total)
	case base == nil && total != nil:
		v.TotalValue = nonNegative(*total)
		v.BaseValue = nonNegative(v.TotalValue.Sub(v.SocialValue))
	case base != nil && total == nil:
		v.BaseValue = nonNegative(*base)
		v.TotalValue = v.BaseValue.Add(v.SocialValue)
	}

	return v
}

// Consistent reports whether total_value matches base_value + social_value within tolerance.
func (v AssetValuation) Consistent() bool {
	return v.TotalValue.Sub(v.BaseValue.Add(v.SocialValue)).Abs().LessThanOrEqual(valuationTolerance)
}

// WithSocialUpdate returns a copy carrying a pushed social/total value pair.
// A pushed total is authoritative, so base is re-derived from it.
func (v AssetValuation) WithSocialUpdate(social, total *decimal.Decimal) AssetValuation {
	next := v
	if social != nil {
		next.SocialValue = nonNegative(*social)
	}
	if total != nil {
		next.TotalValue = nonNegative(*total)
		next.BaseValue = nonNegative(next.TotalValue.Sub(next.SocialValue))
	} else {
		next.TotalValue = next.BaseValue.Add(next.SocialValue)
	}

	return next
}

// CapitalizationConstants global read-only parameters of the capitalization model.
type CapitalizationConstants struct {
	// Floor lowest spread rate an estimated quote may use.
	Floor decimal.Decimal `yaml:"floor"`
	// Ceil highest spread rate an estimated quote may use.
	Ceil decimal.Decimal `yaml:"ceil"`
	// Spread nominal buy/sell spread rate around total value.
	Spread decimal.Decimal `yaml:"spread"`
	// PalierThreshold capitalization amount of one milestone.
	PalierThreshold decimal.Decimal `yaml:"palier_threshold"`
	// MicroImpactRate social value increment applied per threshold crossing.
	MicroImpactRate decimal.Decimal `yaml:"micro_impact_rate"`
	// PalierCount number of milestones.
	PalierCount int64 `yaml:"palier_count"`
}

// DefaultCapitalizationConstants returns the platform defaults.
func DefaultCapitalizationConstants() CapitalizationConstants {
	return CapitalizationConstants{
		Floor:           decimal.NewFromFloat(0.01),
		Ceil:            decimal.NewFromFloat(0.15),
		Spread:          decimal.NewFromFloat(0.05),
		PalierThreshold: decimal.NewFromInt(1_000_000),
		MicroImpactRate: decimal.NewFromFloat(0.001),
		PalierCount:     5,
	}
}

// FinalMilestone capitalization of the last palier.
func (c CapitalizationConstants) FinalMilestone() decimal.Decimal {
	return c.PalierThreshold.Mul(decimal.NewFromInt(c.PalierCount))
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
