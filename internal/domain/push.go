/**
 * @description
 * This file defines the persisted push delivery target. The record id is the
 * hex-encoded SHA-256 of the endpoint URL, which keeps re-registrations of
 * the same browser idempotent.
 */
package domain

import "time"

// PushSubscription is a Web Push delivery target registered by a client.
// The endpoint and keys are opaque to the scheduler; only the push transport
// interprets them.
type PushSubscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserEmail string    `json:"user_email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
