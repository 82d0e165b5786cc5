package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"astrodriz/internal/config"
)

const userAgent = "Astrodriz-Go/0.1.0"

// Event names a run milestone worth telling someone about.
type Event string

const (
	EventRunDetected    Event = "run_detected"
	EventRunStarted     Event = "run_started"
	EventRunCompleted   Event = "run_completed"
	EventRunSkipped     Event = "run_skipped"
	EventReviewNeeded   Event = "review_needed"
	EventQueueCompleted Event = "queue_completed"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries the event's loosely-typed details. Formatters pull the
// keys they know about and ignore the rest.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		runEvents:  cfg.Notifications.Runs,
		errorAlert: cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runEvents  bool
	errorAlert bool
}

// Publish formats and sends one event. Suppressed or unknown events are
// dropped silently so callers never branch on notification settings.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunDetected:
		if !n.runEvents {
			return message{}, false
		}
		kind := stringValue(payload, "kind")
		if kind == "" {
			kind = "exposure"
		}
		return message{
			title: "Astrodriz - Dataset Detected",
			body:  fmt.Sprintf("🔭 Dataset detected: %s (%s)", stringValue(payload, "dataset"), kind),
			tags:  []string{"astrodriz", "intake", "detected"},
		}, true
	case EventRunCompleted:
		if !n.runEvents {
			return message{}, false
		}
		body := fmt.Sprintf("✅ Calibration complete: %s", stringValue(payload, "dataset"))
		if mode := stringValue(payload, "mode"); mode != "" {
			body = fmt.Sprintf("%s\nAccepted alignment: %s", body, mode)
		}
		return message{
			title:    "Astrodriz - Complete",
			body:     body,
			tags:     []string{"astrodriz", "run", "completed"},
			priority: "high",
		}, true
	case EventRunSkipped:
		if !n.runEvents {
			return message{}, false
		}
		return message{
			title: "Astrodriz - Skipped",
			body: fmt.Sprintf("Dataset %s skipped: %s",
				stringValue(payload, "dataset"), stringValue(payload, "reason")),
			tags: []string{"astrodriz", "run", "skipped"},
		}, true
	case EventReviewNeeded:
		if !n.errorAlert {
			return message{}, false
		}
		return message{
			title: "Astrodriz - Needs Review",
			body: fmt.Sprintf("⚠️ %s kept a compromised astrometry solution\n%s",
				stringValue(payload, "dataset"), stringValue(payload, "reason")),
			tags:     []string{"astrodriz", "review", "alert"},
			priority: "high",
		}, true
	case EventQueueCompleted:
		if !n.runEvents {
			return message{}, false
		}
		duration, _ := payload["duration"].(time.Duration)
		duration = duration.Round(time.Second)
		if duration <= 0 {
			duration = 0
		}
		processed := intValue(payload, "processed")
		failed := intValue(payload, "failed")
		title := "Astrodriz - Queue Complete"
		body := fmt.Sprintf("Queue processing complete: %d datasets processed in %s", processed, duration)
		if failed > 0 {
			title = "Astrodriz - Queue Complete (with errors)"
			body = fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"astrodriz", "queue", "completed"},
		}, true
	case EventError:
		if !n.errorAlert {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := stringValue(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(errorValue(payload, "error"))
		return message{
			title:    "Astrodriz - Error",
			body:     builder.String(),
			tags:     []string{"astrodriz", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Astrodriz - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"astrodriz", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func errorValue(payload Payload, key string) string {
	if payload == nil {
		return "unknown"
	}
	switch v := payload[key].(type) {
	case error:
		if v != nil {
			return strings.TrimSpace(v.Error())
		}
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return "unknown"
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
