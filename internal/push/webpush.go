/**
 * @description
 * Web Push delivery for reminder notifications. The dispatcher makes exactly
 * one delivery attempt per call; retries, if any, belong to the caller.
 *
 * @dependencies
 * - github.com/SherClockHolmes/webpush-go: VAPID-authenticated Web Push client.
 */
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/Needixx/Needix-sub002/internal/domain"
)

// ErrMissingVAPIDKeys is returned when the dispatcher is constructed without
// a VAPID key pair. This is a configuration failure for the calling request
// only; other subsystems keep working.
var ErrMissingVAPIDKeys = errors.New("VAPID keys are not configured")

// Message is the notification content shown to the user.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Dispatcher sends Web Push notifications using VAPID authentication.
type Dispatcher struct {
	publicKey  string
	privateKey string
	subject    string
}

// NewDispatcher creates a Web Push dispatcher. Subject is the VAPID contact
// (a mailto: or https: URL).
func NewDispatcher(publicKey, privateKey, subject string) *Dispatcher {
	return &Dispatcher{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
	}
}

// Send delivers one notification to the given target. It makes a single
// attempt and reports any non-success response as an error.
func (d *Dispatcher) Send(ctx context.Context, target *domain.PushSubscription, msg Message) error {
	if d.publicKey == "" || d.privateKey == "" {
		return ErrMissingVAPIDKeys
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.P256dh,
			Auth:   target.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      d.subject,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             3600,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
