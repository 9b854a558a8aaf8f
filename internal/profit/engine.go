// Package profit computes marketplace fees, net profit, and the
// recommendation score for an enriched product observation.
package profit

import (
	"math"
	"strings"
)

// Marketplace referral fee rates by category. Categories outside the table
// fall back to the default rate.
const defaultFeeRate = 0.10

var categoryFeeRates = map[string]float64{
	"ビューティー":   0.08,
	"ヘルスケア":    0.08,
	"ドラッグストア": 0.08,
}

// Weight-tier fulfillment surcharges in yen.
const (
	surchargeSmall  = 318 // under 1000g
	surchargeMedium = 434 // under 2000g
	surchargeLarge  = 589 // 2000g and above
)

// Policy holds the operator thresholds that gate the recommended flag.
type Policy struct {
	MinProfitRate  float64
	MaxSalesRank   int
	MaxSellerCount int
	ShippingCost   int
}

// DefaultPolicy returns the thresholds used when no stored settings exist.
func DefaultPolicy() Policy {
	return Policy{
		MinProfitRate:  20,
		MaxSalesRank:   50000,
		MaxSellerCount: 10,
		ShippingCost:   500,
	}
}

// Input carries one observation into the engine. SellPrice and PurchaseCost
// are yen. PackageWeight is grams; zero means unknown and is charged at the
// smallest tier.
type Input struct {
	SellPrice     int
	PurchaseCost  int
	Category      string
	PackageWeight int
	SalesRank     int
	SellerCount   int
}

// Result is the full fee and profit breakdown for one observation.
type Result struct {
	FeeRate             float64
	MarketplaceFee      int
	WeightSurcharge     int
	ShippingCost        int
	ProfitAmount        int
	ProfitRate          float64
	ROI                 float64
	RecommendationScore int
	IsRecommended       bool
}

// FeeRate returns the referral fee rate for a category. Matching is by
// substring so "ビューティー > スキンケア" resolves to the beauty rate.
func FeeRate(category string) float64 {
	for key, rate := range categoryFeeRates {
		if strings.Contains(category, key) {
			return rate
		}
	}
	return defaultFeeRate
}

// WeightSurcharge returns the fulfillment surcharge for a package weight in
// grams.
func WeightSurcharge(grams int) int {
	switch {
	case grams < 1000:
		return surchargeSmall
	case grams < 2000:
		return surchargeMedium
	default:
		return surchargeLarge
	}
}

// Compute runs the full fee, profit, and recommendation calculation.
func Compute(in Input, policy Policy) Result {
	feeRate := FeeRate(in.Category)
	surcharge := WeightSurcharge(in.PackageWeight)
	// Referral fee and surcharge are rounded as one sum, to the nearest yen.
	fee := int(math.Round(float64(in.SellPrice)*feeRate + float64(surcharge)))

	profit := in.SellPrice - in.PurchaseCost - fee - policy.ShippingCost

	// Profit rate is ROI against purchase cost. A zero cost yields zero
	// rather than a division error.
	var rate float64
	if in.PurchaseCost > 0 {
		rate = float64(profit) / float64(in.PurchaseCost) * 100
	}

	score := recommendationScore(rate, in.SalesRank, in.SellerCount)

	// A missing rank (zero) passes the rank ceiling; the score bonuses above
	// still require a real rank.
	recommended := rate >= policy.MinProfitRate &&
		in.SalesRank <= policy.MaxSalesRank &&
		in.SellerCount <= policy.MaxSellerCount

	return Result{
		FeeRate:             feeRate,
		MarketplaceFee:      fee,
		WeightSurcharge:     surcharge,
		ShippingCost:        policy.ShippingCost,
		ProfitAmount:        profit,
		ProfitRate:          rate,
		ROI:                 rate,
		RecommendationScore: score,
		IsRecommended:       recommended,
	}
}

// recommendationScore maps profit rate, sales rank, and seller count onto a
// 0-100 score starting from a neutral base of 50.
func recommendationScore(profitRate float64, salesRank, sellerCount int) int {
	score := 50

	switch {
	case profitRate > 30:
		score += 30
	case profitRate > 20:
		score += 20
	case profitRate > 15:
		score += 10
	}

	if salesRank > 0 {
		switch {
		case salesRank < 10000:
			score += 20
		case salesRank < 30000:
			score += 10
		case salesRank < 50000:
			score += 5
		}
	}

	if sellerCount > 0 {
		if sellerCount < 5 {
			score += 10
		} else if sellerCount > 20 {
			score -= 10
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
