/**
 * @description
 * Redis-backed dedupe markers for reminder delivery. A marker is claimed
 * atomically with SET NX before a reminder is dispatched, so two overlapping
 * dispatch cycles cannot both send the same (subscription, date, lead)
 * triple. Markers expire on their own; nothing deletes them except a failed
 * dispatch releasing its own claim.
 */
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerTTL is how long a sent marker survives. Within this window a
// reminder for the same triple is never delivered twice.
const MarkerTTL = 7 * 24 * time.Hour

// MarkerStore manages reminder dedupe markers in Redis.
type MarkerStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewMarkerStore creates a marker store. An empty prefix falls back to the
// default namespace.
func NewMarkerStore(client redis.UniversalClient, prefix string) *MarkerStore {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "needix:reminder:sent"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")

	return &MarkerStore{
		client: client,
		prefix: trimmed,
		ttl:    MarkerTTL,
	}
}

func (m *MarkerStore) key(snapshotID, billingDate string, leadDays int) string {
	return fmt.Sprintf("%s:%s:%s:%d", m.prefix, snapshotID, billingDate, leadDays)
}

// Claim atomically marks the triple as sent. It returns true when this caller
// won the claim and false when a marker already exists.
func (m *MarkerStore) Claim(ctx context.Context, snapshotID, billingDate string, leadDays int) (bool, error) {
	return m.client.SetNX(ctx, m.key(snapshotID, billingDate, leadDays), time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
}

// Release drops a previously claimed marker so a later cycle can retry after
// a failed dispatch.
func (m *MarkerStore) Release(ctx context.Context, snapshotID, billingDate string, leadDays int) error {
	return m.client.Del(ctx, m.key(snapshotID, billingDate, leadDays)).Err()
}
