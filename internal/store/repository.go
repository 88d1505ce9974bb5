/**
 * @description
 * This file implements the data access layer for reminder snapshots, push
 * subscription records and the cached bank transactions read by the
 * recurring-charge detector. It contains all the SQL queries and logic for
 * interacting with the database.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Needixx/Needix-sub002/internal/domain"
)

// ErrPushSubscriptionNotFound is returned when no delivery target exists for
// a snapshot id.
var ErrPushSubscriptionNotFound = errors.New("push subscription not found")

// Repository handles database operations for the reminder and detection flows.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertSnapshot overwrites a reminder snapshot wholesale. Snapshots are
// never partially mutated: the owning user flow rewrites the whole record
// whenever the subscription list changes.
func (r *Repository) UpsertSnapshot(ctx context.Context, snap *domain.ReminderSnapshot) error {
	settings, err := json.Marshal(snap.Settings)
	if err != nil {
		return err
	}
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO reminder_snapshots (id, user_email, tz_offset_minutes, settings, items, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (id) DO UPDATE SET
            user_email = EXCLUDED.user_email,
            tz_offset_minutes = EXCLUDED.tz_offset_minutes,
            settings = EXCLUDED.settings,
            items = EXCLUDED.items,
            updated_at = NOW()
    `
	_, err = r.db.Exec(ctx, query, snap.ID, snap.UserEmail, snap.TZOffsetMinutes, settings, items)
	return err
}

// ListSnapshots returns every persisted reminder snapshot. The dispatch cycle
// reads fresh state on every invocation.
func (r *Repository) ListSnapshots(ctx context.Context) ([]domain.ReminderSnapshot, error) {
	query := `
        SELECT id, COALESCE(user_email, ''), tz_offset_minutes, settings, items
        FROM reminder_snapshots
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []domain.ReminderSnapshot
	for rows.Next() {
		var snap domain.ReminderSnapshot
		var settings, items []byte
		if err := rows.Scan(&snap.ID, &snap.UserEmail, &snap.TZOffsetMinutes, &settings, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(settings, &snap.Settings); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &snap.Items); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// UpsertPushSubscription creates or refreshes a push delivery target. The id
// is the hash of the endpoint, so re-registering the same browser updates in
// place.
func (r *Repository) UpsertPushSubscription(ctx context.Context, sub *domain.PushSubscription) error {
	query := `
        INSERT INTO push_subscriptions (id, endpoint, p256dh, auth, user_email, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (id) DO UPDATE SET
            endpoint = EXCLUDED.endpoint,
            p256dh = EXCLUDED.p256dh,
            auth = EXCLUDED.auth,
            user_email = EXCLUDED.user_email
    `
	_, err := r.db.Exec(ctx, query, sub.ID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserEmail)
	return err
}

// GetPushSubscription looks up a delivery target by id.
func (r *Repository) GetPushSubscription(ctx context.Context, id string) (*domain.PushSubscription, error) {
	var sub domain.PushSubscription
	query := `
        SELECT id, endpoint, p256dh, auth, COALESCE(user_email, ''), created_at
        FROM push_subscriptions
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.Endpoint,
		&sub.P256dh,
		&sub.Auth,
		&sub.UserEmail,
		&sub.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPushSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// GetRecentTransactions returns a user's cached bank transactions, newest
// first, capped at limit. The bank-sync flow owns the writes; the detector
// only reads.
func (r *Repository) GetRecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	query := `
        SELECT id, user_id, merchant, amount, currency, txn_date, categories
        FROM bank_transactions
        WHERE user_id = $1
        ORDER BY txn_date DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Merchant,
			&txn.Amount,
			&txn.Currency,
			&txn.Date,
			&txn.Categories,
		); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}
