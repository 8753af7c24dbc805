package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lizzy/internal/config"
	"lizzy/internal/domain"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Source reads the event log in id order.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Notifier posts new events to the configured webhooks. Each hook keeps its own
// cursor, so a failing endpoint is retried from the first undelivered event.
type Notifier struct {
	Source  Source
	Project string
	Hooks   []config.WebhookConfig
	Client  *http.Client
	Log     *zap.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func NewNotifier(src Source, project string, hooks []config.WebhookConfig, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		Source:  src,
		Project: project,
		Hooks:   hooks,
		Client:  &http.Client{Timeout: defaultWebhookTimeout},
		Log:     log,
		cursors: make(map[int]int64),
	}
}

// Active reports whether at least one hook would receive deliveries.
func (n *Notifier) Active() bool {
	if n == nil {
		return false
	}
	for _, hook := range n.Hooks {
		if hookEnabled(hook) {
			return true
		}
	}
	return false
}

// Mark positions hook cursors that are not set yet at cursor. Events after it
// are delivered by the next Flush. A hook that still has undelivered events
// keeps its cursor.
func (n *Notifier) Mark(cursor int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.Hooks {
		if _, ok := n.cursors[i]; !ok {
			n.cursors[i] = cursor
		}
	}
}

// Flush delivers pending events to every enabled hook and returns how many
// deliveries succeeded. Delivery errors are logged, not returned.
func (n *Notifier) Flush(ctx context.Context) int {
	delivered := 0
	for i, hook := range n.Hooks {
		if !hookEnabled(hook) {
			continue
		}
		delivered += n.dispatch(ctx, i, hook)
	}
	return delivered
}

// Run flushes on an interval until ctx is done.
func (n *Notifier) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n.Flush(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func hookEnabled(hook config.WebhookConfig) bool {
	if hook.Enabled != nil && !*hook.Enabled {
		return false
	}
	return strings.TrimSpace(hook.URL) != ""
}

// dispatch drains the log for one hook in batches. It stops at the first
// failed delivery so the next Flush resumes from that event.
func (n *Notifier) dispatch(ctx context.Context, idx int, hook config.WebhookConfig) int {
	cursor := n.cursorFor(ctx, idx)
	filter := newEventFilter(hook.Events)
	delivered := 0
	for {
		evts, err := n.Source.EventsAfter(ctx, defaultWebhookBatch, cursor)
		if err != nil {
			n.Log.Warn("webhook: fetch events failed", zap.Error(err))
			return delivered
		}
		for _, evt := range evts {
			if filter.match(evt.Type) {
				if err := n.postEvent(ctx, hook, evt); err != nil {
					n.Log.Warn("webhook: delivery failed", zap.String("url", hook.URL), zap.Int64("event_id", evt.ID), zap.Error(err))
					return delivered
				}
				delivered++
			}
			cursor = evt.ID
			n.setCursor(idx, cursor)
		}
		if len(evts) < defaultWebhookBatch || ctx.Err() != nil {
			return delivered
		}
	}
}

func (n *Notifier) cursorFor(ctx context.Context, idx int) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.cursors[idx]; ok {
		return cur
	}
	cur, err := n.Source.LatestEventID(ctx)
	if err != nil {
		n.Log.Warn("webhook: init cursor failed", zap.Error(err))
		cur = 0
	}
	n.cursors[idx] = cur
	return cur
}

func (n *Notifier) setCursor(idx int, value int64) {
	n.mu.Lock()
	n.cursors[idx] = value
	n.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *Notifier) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lizzy-Event", evt.Type)
	req.Header.Set("X-Lizzy-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Lizzy-Project", n.Project)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Lizzy-Signature", Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
