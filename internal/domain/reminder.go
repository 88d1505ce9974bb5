/**
 * @description
 * This file defines the reminder snapshot models read by the dispatch cycle.
 * A snapshot is written wholesale by the owning user flow whenever their
 * subscription list changes; the scheduler only ever reads it.
 */
package domain

// ReminderSettings holds a user's reminder preferences.
// LeadDays are whole days before the billing date; 0 (day-of) is always
// checked in addition to this list. TimeOfDay is a 24-hour "HH:MM" string in
// the user's local time.
type ReminderSettings struct {
	LeadDays  []int  `json:"lead_days"`
	TimeOfDay string `json:"time_of_day"`
}

// SubscriptionItem is the lightweight per-subscription summary carried inside
// a snapshot. NextBillingDate is a calendar date string "YYYY-MM-DD" with no
// time zone; it may be empty for subscriptions without a known renewal date.
type SubscriptionItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NextBillingDate string `json:"next_billing_date"`
}

// ReminderSnapshot bundles everything the dispatch cycle needs for one user:
// subscriptions, timezone and delivery preferences.
//
// TZOffsetMinutes is the offset of the user's local time EAST of UTC, so
// utc = local - offset. A user at UTC-5 has TZOffsetMinutes = -300.
type ReminderSnapshot struct {
	ID              string             `json:"id"`
	UserEmail       string             `json:"user_email,omitempty"`
	TZOffsetMinutes int                `json:"tz_offset_minutes"`
	Settings        ReminderSettings   `json:"settings"`
	Items           []SubscriptionItem `json:"items"`
}

// ReminderSentEvent is published after each successful push delivery.
type ReminderSentEvent struct {
	EventID        string `json:"event_id"`
	SnapshotID     string `json:"snapshot_id"`
	SubscriptionID string `json:"subscription_id"`
	Subscription   string `json:"subscription"`
	BillingDate    string `json:"billing_date"`
	LeadDays       int    `json:"lead_days"`
}

// ReminderEmailEvent is published alongside the push delivery when the
// snapshot carries an email address. An email worker outside this service
// consumes it.
type ReminderEmailEvent struct {
	EventID     string `json:"event_id"`
	Email       string `json:"email"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	BillingDate string `json:"billing_date"`
}
