/**
 * @description
 * Merchant grouping for the recurring-charge detector. Transactions are
 * bucketed by normalized merchant name and each bucket is sorted ascending
 * by date so the classifier can compute inter-transaction deltas directly.
 */
package detect

import (
	"sort"
	"strings"

	"github.com/Needixx/Needix-sub002/internal/domain"
)

// NormalizeMerchant produces the grouping key for a merchant name.
// Normalization is lowercase plus trim only: distinct spellings of the same
// real-world merchant stay distinct groups. Fuzzy matching would change
// user-visible detection results, so it is deliberately not done here.
func NormalizeMerchant(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GroupByMerchant maps each normalized merchant key to that merchant's
// transactions, sorted ascending by date. A nil or empty input yields an
// empty map. The input slice is not mutated.
func GroupByMerchant(txns []domain.Transaction) map[string][]domain.Transaction {
	groups := make(map[string][]domain.Transaction)
	for _, txn := range txns {
		key := NormalizeMerchant(txn.Merchant)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], txn)
	}

	for key := range groups {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})
		groups[key] = group
	}

	return groups
}
