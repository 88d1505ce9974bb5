/**
 * @description
 * This file defines the models produced by the recurring-charge classifier.
 * A DetectedSubscription is advisory output: it is computed on demand and is
 * only persisted if the user explicitly converts it into a tracked
 * subscription through the CRUD layer.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FrequencyBucket is the inferred billing cadence of a merchant group.
type FrequencyBucket string

const (
	FrequencyWeekly    FrequencyBucket = "weekly"
	FrequencyMonthly   FrequencyBucket = "monthly"
	FrequencyQuarterly FrequencyBucket = "quarterly"
	FrequencyYearly    FrequencyBucket = "yearly"
	FrequencyUnknown   FrequencyBucket = "unknown"
)

// DetectedSubscription is a subscription-like pattern inferred from a user's
// bank transactions, with a heuristic confidence in [0.6, 1.0].
type DetectedSubscription struct {
	Merchant            string          `json:"merchant"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Frequency           FrequencyBucket `json:"frequency"`
	TransactionCount    int             `json:"transaction_count"`
	LastTransactionDate time.Time       `json:"last_transaction_date"`
	Categories          []string        `json:"categories"`
	Confidence          float64         `json:"confidence"`
	SampleTransactionID string          `json:"sample_transaction_id"`
}
