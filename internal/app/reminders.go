/**
 * @description
 * The reminder dispatch cycle. Each run loads every persisted snapshot,
 * computes candidate fire instants per (subscription, lead-day) pair,
 * claims a dedupe marker for the ones due now, and delivers them over the
 * push transport. A failure for one reminder never aborts the rest of the
 * batch.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Needixx/Needix-sub002/internal/domain"
	"github.com/Needixx/Needix-sub002/internal/push"
	"github.com/Needixx/Needix-sub002/internal/store"
	"github.com/Needixx/Needix-sub002/pkg/rabbitmq"
)

// DefaultTolerance is how long past its fire instant a reminder still counts
// as due. It implicitly bounds how late a delayed cycle will still fire.
const DefaultTolerance = 5 * time.Minute

// ErrCycleInProgress is returned when a dispatch cycle is requested while a
// previous one is still running. Cycles are serialized, never overlapped.
var ErrCycleInProgress = errors.New("dispatch cycle already in progress")

// SnapshotStore defines the persistence operations the cycle needs.
type SnapshotStore interface {
	ListSnapshots(ctx context.Context) ([]domain.ReminderSnapshot, error)
	GetPushSubscription(ctx context.Context, id string) (*domain.PushSubscription, error)
}

// MarkerStore defines the atomic dedupe marker operations.
type MarkerStore interface {
	Claim(ctx context.Context, snapshotID, billingDate string, leadDays int) (bool, error)
	Release(ctx context.Context, snapshotID, billingDate string, leadDays int) error
}

// Dispatcher delivers one notification. One attempt per call, no internal
// retries.
type Dispatcher interface {
	Send(ctx context.Context, target *domain.PushSubscription, msg push.Message) error
}

// EventPublisher publishes reminder lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// ReminderService runs dispatch cycles over the persisted snapshots.
type ReminderService struct {
	snapshots  SnapshotStore
	markers    MarkerStore
	dispatcher Dispatcher
	events     EventPublisher
	logger     *slog.Logger
	tolerance  time.Duration
	now        func() time.Time

	mu sync.Mutex
}

// NewReminderService creates a reminder service. events may be nil when no
// broker is configured; event publishing is then skipped.
func NewReminderService(snapshots SnapshotStore, markers MarkerStore, dispatcher Dispatcher, events EventPublisher, logger *slog.Logger, tolerance time.Duration) *ReminderService {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &ReminderService{
		snapshots:  snapshots,
		markers:    markers,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		tolerance:  tolerance,
		now:        time.Now,
	}
}

// EffectiveLeadDays builds the complete set of lead offsets for a snapshot:
// {0} plus the configured lead days, deduplicated, ascending. Negative
// entries are dropped.
func EffectiveLeadDays(settings domain.ReminderSettings) []int {
	seen := map[int]bool{0: true}
	leads := []int{0}
	for _, lead := range settings.LeadDays {
		if lead < 0 || seen[lead] {
			continue
		}
		seen[lead] = true
		leads = append(leads, lead)
	}
	sort.Ints(leads)
	return leads
}

// ComputeFireTime resolves the UTC instant at which a reminder fires: the
// billing date minus leadDays whole calendar days, at timeOfDay in the
// snapshot's local zone. tzOffsetMinutes is minutes east of UTC, so
// utc = local - offset.
func ComputeFireTime(billingDate, timeOfDay string, tzOffsetMinutes, leadDays int) (time.Time, error) {
	day, err := time.Parse("2006-01-02", billingDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid billing date %q: %w", billingDate, err)
	}
	clock, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", timeOfDay, err)
	}

	// Lead subtraction operates on whole calendar days before the
	// time-of-day is applied.
	local := day.AddDate(0, 0, -leadDays).
		Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	return local.Add(-time.Duration(tzOffsetMinutes) * time.Minute).UTC(), nil
}

// RunCycle executes one dispatch cycle and returns the number of reminders
// delivered. It returns ErrCycleInProgress when another cycle is running.
func (s *ReminderService) RunCycle(ctx context.Context) (int, error) {
	if !s.mu.TryLock() {
		return 0, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	snaps, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading reminder snapshots: %w", err)
	}

	dispatched := 0
	for _, snap := range snaps {
		dispatched += s.processSnapshot(ctx, snap)
	}

	s.logger.Info("dispatch cycle finished", "snapshots", len(snaps), "dispatched", dispatched)
	return dispatched, nil
}

func (s *ReminderService) processSnapshot(ctx context.Context, snap domain.ReminderSnapshot) int {
	leads := EffectiveLeadDays(snap.Settings)
	now := s.now()

	dispatched := 0
	for _, item := range snap.Items {
		if item.NextBillingDate == "" {
			continue
		}
		for _, lead := range leads {
			fireAt, err := ComputeFireTime(item.NextBillingDate, snap.Settings.TimeOfDay, snap.TZOffsetMinutes, lead)
			if err != nil {
				s.logger.Warn("skipping reminder with invalid schedule",
					"snapshot_id", snap.ID, "subscription_id", item.ID, "error", err)
				continue
			}

			elapsed := now.Sub(fireAt)
			if elapsed < 0 || elapsed > s.tolerance {
				continue
			}

			if s.deliver(ctx, snap, item, lead) {
				dispatched++
			}
		}
	}
	return dispatched
}

// deliver sends one due reminder. It reports true only when the push
// delivery succeeded.
func (s *ReminderService) deliver(ctx context.Context, snap domain.ReminderSnapshot, item domain.SubscriptionItem, lead int) bool {
	target, err := s.snapshots.GetPushSubscription(ctx, snap.ID)
	if err != nil {
		if !errors.Is(err, store.ErrPushSubscriptionNotFound) {
			s.logger.Error("failed to load push subscription", "snapshot_id", snap.ID, "error", err)
		}
		return false
	}

	claimed, err := s.markers.Claim(ctx, snap.ID, item.NextBillingDate, lead)
	if err != nil {
		s.logger.Error("failed to claim dedupe marker",
			"snapshot_id", snap.ID, "billing_date", item.NextBillingDate, "lead_days", lead, "error", err)
		return false
	}
	if !claimed {
		return false
	}

	msg := push.Message{
		Title: "Needix reminder",
		Body:  reminderBody(item.Name, item.NextBillingDate, lead),
	}
	if err := s.dispatcher.Send(ctx, target, msg); err != nil {
		s.logger.Error("failed to dispatch reminder",
			"snapshot_id", snap.ID, "subscription_id", item.ID, "lead_days", lead, "error", err)
		// Release the claim so a later cycle inside the tolerance window can
		// retry. Losing this release only costs a skipped retry, never a
		// duplicate send.
		if relErr := s.markers.Release(ctx, snap.ID, item.NextBillingDate, lead); relErr != nil {
			s.logger.Error("failed to release dedupe marker", "snapshot_id", snap.ID, "error", relErr)
		}
		return false
	}

	s.publishEvents(ctx, snap, item, lead, msg)
	return true
}

func (s *ReminderService) publishEvents(ctx context.Context, snap domain.ReminderSnapshot, item domain.SubscriptionItem, lead int, msg push.Message) {
	if s.events == nil {
		return
	}

	sent := domain.ReminderSentEvent{
		EventID:        uuid.NewString(),
		SnapshotID:     snap.ID,
		SubscriptionID: item.ID,
		Subscription:   item.Name,
		BillingDate:    item.NextBillingDate,
		LeadDays:       lead,
	}
	if err := s.events.Publish(ctx, rabbitmq.ReminderExchange, rabbitmq.RoutingKeyReminderSent, sent); err != nil {
		s.logger.Warn("failed to publish reminder.sent event", "snapshot_id", snap.ID, "error", err)
	}

	if snap.UserEmail == "" {
		return
	}
	email := domain.ReminderEmailEvent{
		EventID:     uuid.NewString(),
		Email:       snap.UserEmail,
		Subject:     msg.Title,
		Body:        msg.Body,
		BillingDate: item.NextBillingDate,
	}
	if err := s.events.Publish(ctx, rabbitmq.ReminderExchange, rabbitmq.RoutingKeyReminderEmail, email); err != nil {
		s.logger.Warn("failed to publish reminder.email event", "snapshot_id", snap.ID, "error", err)
	}
}

func reminderBody(name, billingDate string, lead int) string {
	if lead == 0 {
		return fmt.Sprintf("%s renews today (%s)", name, billingDate)
	}
	if lead == 1 {
		return fmt.Sprintf("%s renews in 1 day (%s)", name, billingDate)
	}
	return fmt.Sprintf("%s renews in %d days (%s)", name, lead, billingDate)
}
