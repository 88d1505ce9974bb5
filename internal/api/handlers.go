/**
 * @description
 * This file contains the HTTP handler functions for the Needix backend.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate business logic, and writing the HTTP response. The detection
 * endpoint is advisory and always answers 200 with an array; snapshot writes
 * are validated synchronously before anything is persisted.
 */
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Needixx/Needix-sub002/internal/app"
	"github.com/Needixx/Needix-sub002/internal/domain"
	"github.com/Needixx/Needix-sub002/internal/push"
)

// DetectionService computes subscription candidates for a user.
type DetectionService interface {
	DetectSubscriptions(ctx context.Context, userID string) []domain.DetectedSubscription
}

// ReminderRunner runs one dispatch cycle.
type ReminderRunner interface {
	RunCycle(ctx context.Context) (int, error)
}

// SnapshotWriter persists snapshots and push registrations.
type SnapshotWriter interface {
	UpsertSnapshot(ctx context.Context, snap *domain.ReminderSnapshot) error
	UpsertPushSubscription(ctx context.Context, sub *domain.PushSubscription) error
}

// Sender makes a single ad hoc push delivery attempt.
type Sender interface {
	Send(ctx context.Context, target *domain.PushSubscription, msg push.Message) error
}

// Handler holds the services that handlers interact with.
type Handler struct {
	detection DetectionService
	reminders ReminderRunner
	store     SnapshotWriter
	sender    Sender
	logger    *slog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(detection DetectionService, reminders ReminderRunner, store SnapshotWriter, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		detection: detection,
		reminders: reminders,
		store:     store,
		sender:    sender,
		logger:    logger,
	}
}

// handleDetect returns the subscription candidates inferred from the
// caller's cached bank transactions. Always 200 with an array: no data and
// internal failures both degrade to empty.
func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	candidates := h.detection.DetectSubscriptions(r.Context(), userID)
	respondWithJSON(w, http.StatusOK, candidates)
}

// snapshotRequest is the wire shape of a snapshot overwrite.
type snapshotRequest struct {
	ID              string `json:"id"`
	UserEmail       string `json:"userEmail"`
	TZOffsetMinutes int    `json:"tzOffsetMinutes"`
	Settings        struct {
		LeadDays  []int  `json:"leadDays"`
		TimeOfDay string `json:"timeOfDay"`
	} `json:"settings"`
	Items []domain.SubscriptionItem `json:"items"`
}

// handleUpsertSnapshot overwrites the caller's reminder snapshot wholesale.
// Malformed input is rejected with 400 before any persistence occurs.
func (h *Handler) handleUpsertSnapshot(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserFromContext(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateSnapshotRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	snap := &domain.ReminderSnapshot{
		ID:              req.ID,
		UserEmail:       req.UserEmail,
		TZOffsetMinutes: req.TZOffsetMinutes,
		Settings: domain.ReminderSettings{
			LeadDays:  req.Settings.LeadDays,
			TimeOfDay: req.Settings.TimeOfDay,
		},
		Items: req.Items,
	}
	if err := h.store.UpsertSnapshot(r.Context(), snap); err != nil {
		h.logger.Error("failed to persist reminder snapshot", "snapshot_id", snap.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, snap)
}

func validateSnapshotRequest(req *snapshotRequest) error {
	if _, err := time.Parse("15:04", req.Settings.TimeOfDay); err != nil {
		return errors.New("settings.timeOfDay must be a 24-hour HH:MM string")
	}
	for _, lead := range req.Settings.LeadDays {
		if lead < 0 {
			return errors.New("settings.leadDays entries must be non-negative")
		}
	}
	// Offsets beyond UTC-12..UTC+14 do not exist.
	if req.TZOffsetMinutes < -12*60 || req.TZOffsetMinutes > 14*60 {
		return errors.New("tzOffsetMinutes out of range")
	}
	for _, item := range req.Items {
		if item.ID == "" || item.Name == "" {
			return errors.New("every item requires id and name")
		}
		if item.NextBillingDate != "" {
			if _, err := time.Parse("2006-01-02", item.NextBillingDate); err != nil {
				return errors.New("item next_billing_date must be YYYY-MM-DD")
			}
		}
	}
	return nil
}

// handleDispatch runs one reminder dispatch cycle and reports how many
// reminders were delivered. 409 when a cycle is already in flight.
func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	count, err := h.reminders.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrCycleInProgress) {
			http.Error(w, "Dispatch cycle already running", http.StatusConflict)
			return
		}
		h.logger.Error("dispatch cycle failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"dispatched": count})
}

// pushPayload is the browser-supplied push subscription object.
type pushPayload struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// handleSubscribePush registers a push delivery target. The record id is the
// SHA-256 of the endpoint so repeat registrations update in place.
func (h *Handler) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserFromContext(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Subscription pushPayload `json:"subscription"`
		UserEmail    string      `json:"userEmail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		http.Error(w, "subscription endpoint and keys are required", http.StatusBadRequest)
		return
	}

	sub := &domain.PushSubscription{
		ID:        endpointID(req.Subscription.Endpoint),
		Endpoint:  req.Subscription.Endpoint,
		P256dh:    req.Subscription.Keys.P256dh,
		Auth:      req.Subscription.Keys.Auth,
		UserEmail: req.UserEmail,
	}
	if err := h.store.UpsertPushSubscription(r.Context(), sub); err != nil {
		h.logger.Error("failed to persist push subscription", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"id": sub.ID})
}

// handleSendNotification makes an ad hoc push delivery, used for test sends.
// A transport failure maps to 502; missing VAPID configuration is a failure
// of this call only.
func (h *Handler) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subscription pushPayload `json:"subscription"`
		Title        string      `json:"title"`
		Body         string      `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Subscription.Endpoint == "" || req.Title == "" {
		http.Error(w, "subscription endpoint and title are required", http.StatusBadRequest)
		return
	}

	target := &domain.PushSubscription{
		ID:       endpointID(req.Subscription.Endpoint),
		Endpoint: req.Subscription.Endpoint,
		P256dh:   req.Subscription.Keys.P256dh,
		Auth:     req.Subscription.Keys.Auth,
	}
	err := h.sender.Send(r.Context(), target, push.Message{Title: req.Title, Body: req.Body})
	if err != nil {
		if errors.Is(err, push.ErrMissingVAPIDKeys) {
			http.Error(w, "Push transport is not configured", http.StatusInternalServerError)
			return
		}
		h.logger.Error("ad hoc push delivery failed", "error", err)
		http.Error(w, "Delivery failed", http.StatusBadGateway)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func endpointID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
