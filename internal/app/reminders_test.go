package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Needixx/Needix-sub002/internal/domain"
	"github.com/Needixx/Needix-sub002/internal/push"
	"github.com/Needixx/Needix-sub002/internal/store"
)

type snapshotStoreStub struct {
	snaps    []domain.ReminderSnapshot
	snapsErr error
	targets  map[string]*domain.PushSubscription
}

func (s *snapshotStoreStub) ListSnapshots(ctx context.Context) ([]domain.ReminderSnapshot, error) {
	if s.snapsErr != nil {
		return nil, s.snapsErr
	}
	return s.snaps, nil
}

func (s *snapshotStoreStub) GetPushSubscription(ctx context.Context, id string) (*domain.PushSubscription, error) {
	if target, ok := s.targets[id]; ok {
		return target, nil
	}
	return nil, store.ErrPushSubscriptionNotFound
}

// markerStoreStub mimics the atomic SetNX semantics of the Redis store.
type markerStoreStub struct {
	mu       sync.Mutex
	claimed  map[string]bool
	claimErr error
}

func newMarkerStoreStub() *markerStoreStub {
	return &markerStoreStub{claimed: make(map[string]bool)}
}

func (m *markerStoreStub) markerKey(id, date string, lead int) string {
	return id + "|" + date + "|" + string(rune('0'+lead))
}

func (m *markerStoreStub) Claim(ctx context.Context, id, date string, lead int) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.markerKey(id, date, lead)
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *markerStoreStub) Release(ctx context.Context, id, date string, lead int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, m.markerKey(id, date, lead))
	return nil
}

type dispatcherStub struct {
	sent    []push.Message
	sendErr error
}

func (d *dispatcherStub) Send(ctx context.Context, target *domain.PushSubscription, msg push.Message) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, msg)
	return nil
}

type publisherStub struct {
	published []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(snaps *snapshotStoreStub, markers MarkerStore, dispatcher Dispatcher, events EventPublisher, now time.Time) *ReminderService {
	svc := NewReminderService(snaps, markers, dispatcher, events, testLogger(), DefaultTolerance)
	svc.now = func() time.Time { return now }
	return svc
}

func dueSnapshot() domain.ReminderSnapshot {
	return domain.ReminderSnapshot{
		ID:              "snap-1",
		TZOffsetMinutes: 0,
		Settings:        domain.ReminderSettings{LeadDays: []int{1}, TimeOfDay: "09:00"},
		Items: []domain.SubscriptionItem{
			{ID: "sub-1", Name: "Netflix", NextBillingDate: "2024-06-15"},
		},
	}
}

func TestComputeFireTime_WestOfUTC(t *testing.T) {
	// Offset -300 (UTC-5), 09:00 local on the lead-adjusted date 2024-06-14
	// is 14:00 UTC. This test pins the east-positive sign convention.
	fireAt, err := ComputeFireTime("2024-06-15", "09:00", -300, 1)
	if err != nil {
		t.Fatalf("ComputeFireTime returned error: %v", err)
	}
	want := time.Date(2024, 6, 14, 14, 0, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, fireAt)
	}
}

func TestComputeFireTime_EastOfUTC(t *testing.T) {
	// Offset +120 (UTC+2), 08:30 local on the billing date is 06:30 UTC.
	fireAt, err := ComputeFireTime("2024-06-15", "08:30", 120, 0)
	if err != nil {
		t.Fatalf("ComputeFireTime returned error: %v", err)
	}
	want := time.Date(2024, 6, 15, 6, 30, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, fireAt)
	}
}

func TestComputeFireTime_RejectsMalformedInput(t *testing.T) {
	if _, err := ComputeFireTime("June 15", "09:00", 0, 0); err == nil {
		t.Fatal("expected error for malformed billing date")
	}
	if _, err := ComputeFireTime("2024-06-15", "9am", 0, 0); err == nil {
		t.Fatal("expected error for malformed time of day")
	}
}

func TestEffectiveLeadDays_IncludesDayOfAndDedupes(t *testing.T) {
	leads := EffectiveLeadDays(domain.ReminderSettings{LeadDays: []int{7, 1, 7, 0, -3}})
	if !reflect.DeepEqual(leads, []int{0, 1, 7}) {
		t.Fatalf("expected [0 1 7], got %v", leads)
	}

	leads = EffectiveLeadDays(domain.ReminderSettings{})
	if !reflect.DeepEqual(leads, []int{0}) {
		t.Fatalf("expected [0] for empty settings, got %v", leads)
	}
}

func TestRunCycle_DispatchesDueReminder(t *testing.T) {
	snap := dueSnapshot()
	// Lead 1 at 09:00 UTC on 2024-06-14; run one minute later.
	now := time.Date(2024, 6, 14, 9, 1, 0, 0, time.UTC)

	snaps := &snapshotStoreStub{
		snaps:   []domain.ReminderSnapshot{snap},
		targets: map[string]*domain.PushSubscription{"snap-1": {ID: "snap-1", Endpoint: "https://push.example/ep"}},
	}
	dispatcher := &dispatcherStub{}
	events := &publisherStub{}
	svc := newTestService(snaps, newMarkerStoreStub(), dispatcher, events, now)

	count, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 dispatched reminder, got %d", count)
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("expected 1 push send, got %d", len(dispatcher.sent))
	}
	if dispatcher.sent[0].Body != "Netflix renews in 1 day (2024-06-15)" {
		t.Fatalf("unexpected reminder body: %q", dispatcher.sent[0].Body)
	}
	if !reflect.DeepEqual(events.published, []string{"reminder.sent"}) {
		t.Fatalf("expected reminder.sent event, got %v", events.published)
	}
}

func TestRunCycle_SecondRunDoesNotResend(t *testing.T) {
	snap := dueSnapshot()
	now := time.Date(2024, 6, 14, 9, 1, 0, 0, time.UTC)

	snaps := &snapshotStoreStub{
		snaps:   []domain.ReminderSnapshot{snap},
		targets: map[string]*domain.PushSubscription{"snap-1": {ID: "snap-1"}},
	}
	dispatcher := &dispatcherStub{}
	markers := newMarkerStoreStub()
	svc := newTestService(snaps, markers, dispatcher, nil, now)

	for i := 0; i < 3; i++ {
		if _, err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle %d returned error: %v", i, err)
		}
	}

	if len(dispatcher.sent) != 1 {
		t.Fatalf("expected exactly 1 push send across repeated cycles, got %d", len(dispatcher.sent))
	}
}

func TestRunCycle_OutsideToleranceWindow(t *testing.T) {
	snap := dueSnapshot()
	snaps := &snapshotStoreStub{
		snaps:   []domain.ReminderSnapshot{snap},
		targets: map[string]*domain.PushSubscription{"snap-1": {ID: "snap-1"}},
	}

	// One minute early: not yet due.
	early := time.Date(2024, 6, 14, 8, 59, 0, 0, time.UTC)
	dispatcher := &dispatcherStub{}
	svc := newTestService(snaps, newMarkerStoreStub(), dispatcher, nil, early)
	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected no sends before the fire instant, got %d", len(dispatcher.sent))
	}

	// Six minutes late: past the tolerance window.
	late := time.Date(2024, 6, 14, 9, 6, 0, 0, time.UTC)
	dispatcher = &dispatcherStub{}
	svc = newTestService(snaps, newMarkerStoreStub(), dispatcher, nil, late)
	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected no sends past the tolerance window, got %d", len(dispatcher.sent))
	}
}

func TestRunCycle_SkipsSnapshotWithoutTarget(t *testing.T) {
	snap := dueSnapshot()
	now := time.Date(2024, 6, 14, 9, 1, 0, 0, time.UTC)

	snaps := &snapshotStoreStub{snaps: []domain.ReminderSnapshot{snap}}
	dispatcher := &dispatcherStub{}
	markers := newMarkerStoreStub()
	svc := newTestService(snaps, markers, dispatcher, nil, now)

	count, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if count != 0 || len(dispatcher.sent) != 0 {
		t.Fatalf("expected no dispatches without a delivery target, got %d", count)
	}
	if len(markers.claimed) != 0 {
		t.Fatal("expected no marker claimed when there is no delivery target")
	}
}

func TestRunCycle_FailureIsolatedPerReminder(t *testing.T) {
	// Two snapshots due at the same instant; the first one's delivery fails.
	broken := dueSnapshot()
	healthy := dueSnapshot()
	healthy.ID = "snap-2"
	healthy.Items = []domain.SubscriptionItem{{ID: "sub-2", Name: "Spotify", NextBillingDate: "2024-06-15"}}

	now := time.Date(2024, 6, 14, 9, 1, 0, 0, time.UTC)
	snaps := &snapshotStoreStub{
		snaps: []domain.ReminderSnapshot{broken, healthy},
		targets: map[string]*domain.PushSubscription{
			"snap-1": {ID: "snap-1"},
			"snap-2": {ID: "snap-2"},
		},
	}

	markers := newMarkerStoreStub()
	failing := &selectiveDispatcher{failFor: "Netflix"}
	svc := newTestService(snaps, markers, failing, nil, now)

	count, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the healthy snapshot to dispatch, got count %d", count)
	}

	// The failed delivery released its claim, so a retry within the window
	// can still fire.
	if claimed, _ := markers.Claim(context.Background(), "snap-1", "2024-06-15", 1); !claimed {
		t.Fatal("expected failed delivery to release its marker claim")
	}
}

type selectiveDispatcher struct {
	failFor string
	sent    []push.Message
}

func (d *selectiveDispatcher) Send(ctx context.Context, target *domain.PushSubscription, msg push.Message) error {
	if d.failFor != "" && len(msg.Body) >= len(d.failFor) && msg.Body[:len(d.failFor)] == d.failFor {
		return errors.New("transport unavailable")
	}
	d.sent = append(d.sent, msg)
	return nil
}

func TestRunCycle_DayOfMessageBody(t *testing.T) {
	snap := dueSnapshot()
	snap.Settings.LeadDays = nil // day-of only
	now := time.Date(2024, 6, 15, 9, 2, 0, 0, time.UTC)

	snaps := &snapshotStoreStub{
		snaps:   []domain.ReminderSnapshot{snap},
		targets: map[string]*domain.PushSubscription{"snap-1": {ID: "snap-1"}},
	}
	dispatcher := &dispatcherStub{}
	svc := newTestService(snaps, newMarkerStoreStub(), dispatcher, nil, now)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(dispatcher.sent))
	}
	if dispatcher.sent[0].Body != "Netflix renews today (2024-06-15)" {
		t.Fatalf("unexpected day-of body: %q", dispatcher.sent[0].Body)
	}
}

func TestRunCycle_EmailEventWhenSnapshotHasEmail(t *testing.T) {
	snap := dueSnapshot()
	snap.UserEmail = "user@example.com"
	now := time.Date(2024, 6, 14, 9, 1, 0, 0, time.UTC)

	snaps := &snapshotStoreStub{
		snaps:   []domain.ReminderSnapshot{snap},
		targets: map[string]*domain.PushSubscription{"snap-1": {ID: "snap-1"}},
	}
	events := &publisherStub{}
	svc := newTestService(snaps, newMarkerStoreStub(), &dispatcherStub{}, events, now)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if !reflect.DeepEqual(events.published, []string{"reminder.sent", "reminder.email"}) {
		t.Fatalf("expected sent and email events, got %v", events.published)
	}
}
