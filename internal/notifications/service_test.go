package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"astrodriz/internal/config"
	"astrodriz/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunCompleted, notifications.Payload{"dataset": "j8cw03010"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "run detected",
			event: notifications.EventRunDetected,
			payload: notifications.Payload{
				"dataset": "j8cw03010",
				"kind":    "association",
			},
			expectTitle:   "Astrodriz - Dataset Detected",
			expectMessage: "🔭 Dataset detected: j8cw03010 (association)",
			expectTags:    "astrodriz,intake,detected",
		},
		{
			name:  "run completed",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"dataset": "j8cw03010",
				"mode":    "aposteriori",
			},
			expectTitle:    "Astrodriz - Complete",
			expectMessage:  "✅ Calibration complete: j8cw03010\nAccepted alignment: aposteriori",
			expectTags:     "astrodriz,run,completed",
			expectPriority: "high",
		},
		{
			name:  "run skipped",
			event: notifications.EventRunSkipped,
			payload: notifications.Payload{
				"dataset": "j8cw03010",
				"reason":  "DRIZCORR = OMIT",
			},
			expectTitle:   "Astrodriz - Skipped",
			expectMessage: "Dataset j8cw03010 skipped: DRIZCORR = OMIT",
			expectTags:    "astrodriz,run,skipped",
		},
		{
			name:  "review needed",
			event: notifications.EventReviewNeeded,
			payload: notifications.Payload{
				"dataset": "j8cw03010",
				"reason":  "similarity index 1.7 kept by force",
			},
			expectTitle:    "Astrodriz - Needs Review",
			expectMessage:  "⚠️ j8cw03010 kept a compromised astrometry solution\nsimilarity index 1.7 kept by force",
			expectTags:     "astrodriz,review,alert",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "align (run #3)",
				"error":   errors.New("drizzle engine failed"),
			},
			expectTitle:    "Astrodriz - Error",
			expectMessage:  "❌ Error with align (run #3): drizzle engine failed",
			expectTags:     "astrodriz,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventRunStarted,
		notifications.Event("unknown_event"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceHonorsConfigToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call with notifications disabled: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Runs = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	muted := []notifications.Event{
		notifications.EventRunDetected,
		notifications.EventRunCompleted,
		notifications.EventRunSkipped,
		notifications.EventReviewNeeded,
		notifications.EventQueueCompleted,
		notifications.EventError,
	}
	for _, event := range muted {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"dataset": "x"}); err != nil {
			t.Fatalf("muted event %s returned error: %v", event, err)
		}
	}
}
