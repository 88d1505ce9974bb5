/**
 * @description
 * Recurrence classification over merchant groups. For each group the
 * classifier computes the mean gap between consecutive transactions, maps it
 * to a frequency bucket, and scores the candidate by cadence fit, amount
 * stability and category hints. Only candidates with confidence >= 0.6 and a
 * known bucket are emitted.
 */
package detect

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Needixx/Needix-sub002/internal/domain"
)

// Inclusive mean day-delta bands per frequency bucket. Confidence is scored
// in integer percent so bonus addition stays exact.
type cadenceBand struct {
	bucket      domain.FrequencyBucket
	minDays     float64
	maxDays     float64
	basePercent int
}

var cadenceBands = []cadenceBand{
	{domain.FrequencyWeekly, 5, 9, 80},
	{domain.FrequencyMonthly, 25, 35, 90},
	{domain.FrequencyQuarterly, 85, 95, 70},
	{domain.FrequencyYearly, 355, 375, 70},
}

const (
	amountStabilityBonusPercent = 10
	categoryHintBonusPercent    = 10
	emitThresholdPercent        = 60

	// Candidates whose confidence differs by no more than this are ordered
	// by recency instead.
	confidenceTieDelta = 0.1
)

// Category substrings that mark a transaction as subscription-like.
var categoryHints = []string{"subscription", "recurring", "membership"}

// The full spread of amounts in a group must stay within this fraction of
// the group mean for the stability bonus.
var stabilityTolerance = decimal.NewFromFloat(0.1)

// ClassifyGroup evaluates one merchant group, already sorted ascending by
// date. It returns the detected candidate and true, or a zero value and
// false when the group has fewer than two transactions, falls outside every
// cadence band, or scores below the emit threshold.
func ClassifyGroup(group []domain.Transaction) (domain.DetectedSubscription, bool) {
	if len(group) < 2 {
		return domain.DetectedSubscription{}, false
	}

	var totalGapDays float64
	for i := 1; i < len(group); i++ {
		totalGapDays += group[i].Date.Sub(group[i-1].Date).Hours() / 24
	}
	meanGap := totalGapDays / float64(len(group)-1)

	bucket := domain.FrequencyUnknown
	percent := 0
	for _, band := range cadenceBands {
		if meanGap >= band.minDays && meanGap <= band.maxDays {
			bucket = band.bucket
			percent = band.basePercent
			break
		}
	}
	if bucket == domain.FrequencyUnknown {
		return domain.DetectedSubscription{}, false
	}

	meanAmount := meanGroupAmount(group)
	if amountsStable(group, meanAmount) {
		percent += amountStabilityBonusPercent
	}
	if hasCategoryHint(group) {
		percent += categoryHintBonusPercent
	}
	if percent > 100 {
		percent = 100
	}
	if percent < emitThresholdPercent {
		return domain.DetectedSubscription{}, false
	}

	return domain.DetectedSubscription{
		Merchant:            group[0].Merchant,
		Amount:              meanAmount,
		Currency:            group[0].Currency,
		Frequency:           bucket,
		TransactionCount:    len(group),
		LastTransactionDate: group[len(group)-1].Date,
		Categories:          group[len(group)-1].Categories,
		Confidence:          float64(percent) / 100,
		SampleTransactionID: group[0].ID,
	}, true
}

// Classify runs ClassifyGroup over every merchant group and returns the
// emitted candidates ordered by confidence descending; candidates within the
// tie delta are ordered by most recent transaction first.
func Classify(groups map[string][]domain.Transaction) []domain.DetectedSubscription {
	candidates := make([]domain.DetectedSubscription, 0, len(groups))
	for _, group := range groups {
		if candidate, ok := ClassifyGroup(group); ok {
			candidates = append(candidates, candidate)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		diff := candidates[i].Confidence - candidates[j].Confidence
		if diff > confidenceTieDelta {
			return true
		}
		if diff < -confidenceTieDelta {
			return false
		}
		return candidates[i].LastTransactionDate.After(candidates[j].LastTransactionDate)
	})

	return candidates
}

func meanGroupAmount(group []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, txn := range group {
		sum = sum.Add(txn.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(group)))).Round(2)
}

// amountsStable reports whether the group's amounts stay within a band of
// 10% of the group mean, i.e. max - min <= 0.1 * mean.
func amountsStable(group []domain.Transaction, mean decimal.Decimal) bool {
	if mean.IsZero() {
		return false
	}
	lowest, highest := group[0].Amount, group[0].Amount
	for _, txn := range group[1:] {
		if txn.Amount.LessThan(lowest) {
			lowest = txn.Amount
		}
		if txn.Amount.GreaterThan(highest) {
			highest = txn.Amount
		}
	}
	return !highest.Sub(lowest).GreaterThan(mean.Abs().Mul(stabilityTolerance))
}

func hasCategoryHint(group []domain.Transaction) bool {
	for _, txn := range group {
		for _, tag := range txn.Categories {
			lower := strings.ToLower(tag)
			for _, hint := range categoryHints {
				if strings.Contains(lower, hint) {
					return true
				}
			}
		}
	}
	return false
}
