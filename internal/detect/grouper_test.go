package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Needixx/Needix-sub002/internal/domain"
)

func txn(id, merchant, date string, amount float64) domain.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{
		ID:       id,
		Merchant: merchant,
		Amount:   decimal.NewFromFloat(amount),
		Currency: "USD",
		Date:     d,
	}
}

func TestGroupByMerchant_NormalizesAndSorts(t *testing.T) {
	txns := []domain.Transaction{
		txn("t3", "  Acme Gym ", "2024-03-02", 29.99),
		txn("t1", "ACME GYM", "2024-01-01", 29.99),
		txn("t2", "acme gym", "2024-02-01", 29.99),
	}

	groups := GroupByMerchant(txns)

	group, ok := groups["acme gym"]
	if !ok {
		t.Fatalf("expected a single normalized group, got keys %v", keys(groups))
	}
	if len(group) != 3 {
		t.Fatalf("expected 3 transactions in group, got %d", len(group))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if group[i].ID != want {
			t.Fatalf("expected group[%d] to be %s, got %s", i, want, group[i].ID)
		}
	}
}

func TestGroupByMerchant_ExactMatchOnly(t *testing.T) {
	// Distinct spellings of the same real-world merchant stay separate.
	txns := []domain.Transaction{
		txn("t1", "Netflix", "2024-01-01", 15.49),
		txn("t2", "NETFLIX.COM", "2024-02-01", 15.49),
	}

	groups := GroupByMerchant(txns)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d (%v)", len(groups), keys(groups))
	}
}

func TestGroupByMerchant_NilAndEmptyInput(t *testing.T) {
	if got := GroupByMerchant(nil); len(got) != 0 {
		t.Fatalf("expected empty map for nil input, got %d groups", len(got))
	}
	if got := GroupByMerchant([]domain.Transaction{}); len(got) != 0 {
		t.Fatalf("expected empty map for empty input, got %d groups", len(got))
	}
}

func TestGroupByMerchant_SkipsBlankMerchant(t *testing.T) {
	groups := GroupByMerchant([]domain.Transaction{txn("t1", "   ", "2024-01-01", 5)})
	if len(groups) != 0 {
		t.Fatalf("expected blank merchant to be skipped, got %v", keys(groups))
	}
}

func keys(groups map[string][]domain.Transaction) []string {
	out := make([]string, 0, len(groups))
	for k := range groups {
		out = append(out, k)
	}
	return out
}
