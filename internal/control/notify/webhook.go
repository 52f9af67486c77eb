package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	controlapp "hygrostat-cloud/internal/control/application"
	telemetryapp "hygrostat-cloud/internal/telemetry/application"
)

// WebhookNotifier posts decision events to an operations webhook. Only
// actuator transitions and suppressed attempts are posted; routine
// no-action cycles are not. A failing post is dropped silently; the
// control loop never waits on notification delivery.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	cooldown time.Duration
	clock    telemetryapp.Clock

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// WebhookOption configures the notifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithCooldown sets a minimum interval between posts for the same kind
// of event.
func WithCooldown(interval time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock telemetryapp.Clock) WebhookOption {
	return func(n *WebhookNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notify: empty url")
	}
	n := &WebhookNotifier{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		clock:    systemClock{},
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Notify implements controlapp.CycleNotifier.
func (n *WebhookNotifier) Notify(ctx context.Context, status controlapp.CycleStatus) {
	if n == nil {
		return
	}
	key, message, ok := describe(status)
	if !ok {
		return
	}
	if !n.shouldSend(key) {
		return
	}
	body, err := json.Marshal(struct {
		Message string                 `json:"message"`
		Cycle   controlapp.CycleStatus `json:"cycle"`
	}{Message: message, Cycle: status})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return
	}
	n.markSent(key)
}

// describe filters events worth posting and renders the message line.
func describe(status controlapp.CycleStatus) (key, message string, ok bool) {
	blend := "n/a"
	if status.Blend != nil {
		blend = fmt.Sprintf("%.2f", *status.Blend)
	}
	switch {
	case status.Suppressed:
		return "suppressed", fmt.Sprintf("turn-on suppressed by override (blend %s)", blend), true
	case status.Action == "TURN_ON" || status.Action == "TURN_OFF":
		verb := "dehumidifier on"
		if status.Action == "TURN_OFF" {
			verb = "dehumidifier off"
		}
		if !status.Confirmed {
			verb += " (unconfirmed)"
		}
		return string(status.Action), fmt.Sprintf("%s, blend %s, state %s", verb, blend, status.State), true
	default:
		return "", "", false
	}
}

func (n *WebhookNotifier) shouldSend(key string) bool {
	if n.cooldown <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	last, ok := n.lastSent[key]
	n.mu.Unlock()
	return !ok || now.Sub(last) >= n.cooldown
}

func (n *WebhookNotifier) markSent(key string) {
	n.mu.Lock()
	n.lastSent[key] = n.clock.Now().UTC()
	n.mu.Unlock()
}

// Multi fans out cycle events to several notifiers.
type Multi struct {
	notifiers []controlapp.CycleNotifier
}

// NewMulti constructs a Multi.
func NewMulti(notifiers ...controlapp.CycleNotifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Notify forwards the event to all notifiers.
func (m *Multi) Notify(ctx context.Context, status controlapp.CycleStatus) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, status)
		}
	}
}
