/**
 * @description
 * This file defines the bank transaction model consumed by the recurring-charge
 * detection pipeline. Transactions are written by the external bank-sync flow
 * and are read-only to this service.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single cached bank transaction for a user.
// Immutable once created; the detection pipeline never mutates it.
type Transaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Merchant   string          `json:"merchant"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Date       time.Time       `json:"date"`
	Categories []string        `json:"categories"`
}
