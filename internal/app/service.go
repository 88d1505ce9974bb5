/**
 * @description
 * This file contains the business logic for on-demand subscription detection.
 * Detection is advisory: any failure degrades to an empty result instead of
 * surfacing to the user.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/Needixx/Needix-sub002/internal/detect"
	"github.com/Needixx/Needix-sub002/internal/domain"
)

// TransactionStore defines the read operations the detector needs.
type TransactionStore interface {
	GetRecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// DetectionService computes subscription candidates from cached bank
// transactions.
type DetectionService struct {
	txns   TransactionStore
	logger *slog.Logger
	limit  int
}

// NewDetectionService creates a detection service. limit caps how many of a
// user's most recent transactions are considered.
func NewDetectionService(txns TransactionStore, logger *slog.Logger, limit int) *DetectionService {
	if limit <= 0 {
		limit = 200
	}
	return &DetectionService{txns: txns, logger: logger, limit: limit}
}

// DetectSubscriptions groups and classifies a user's cached transactions.
// It always returns a usable (possibly empty) slice; errors are logged and
// swallowed.
func (s *DetectionService) DetectSubscriptions(ctx context.Context, userID string) []domain.DetectedSubscription {
	txns, err := s.txns.GetRecentTransactions(ctx, userID, s.limit)
	if err != nil {
		s.logger.Warn("failed to load cached transactions, returning no candidates",
			"user_id", userID, "error", err)
		return []domain.DetectedSubscription{}
	}
	if len(txns) == 0 {
		return []domain.DetectedSubscription{}
	}

	candidates := detect.Classify(detect.GroupByMerchant(txns))
	if candidates == nil {
		candidates = []domain.DetectedSubscription{}
	}
	return candidates
}
