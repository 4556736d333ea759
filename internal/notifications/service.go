package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ddash/internal/config"
	"ddash/internal/services"
)

const userAgent = "ddash/0.1.0"

// Service defines the notification surface used by the reconciliation engine.
type Service interface {
	NotifyParseError(ctx context.Context, collectionSystem, rawPath string, err error) error
	NotifyRunFailed(ctx context.Context, task, reason string) error
	TestNotification(ctx context.Context) error
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
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		parseErrors: cfg.Notifications.ParseErrors,
		runFailures: cfg.Notifications.RunFailures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	parseErrors bool
	runFailures bool
}

func (n *ntfyService) NotifyParseError(ctx context.Context, collectionSystem, rawPath string, err error) error {
	if !n.parseErrors {
		return nil
	}
	message := strings.TrimSpace(rawPath)
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(err.Error()))
	}
	if cs := strings.TrimSpace(collectionSystem); cs != "" {
		message = fmt.Sprintf("[%s] %s", cs, message)
	}
	return n.send(ctx, payload{
		title:   "Datafile Parsing error",
		message: message,
		tags:    []string{"ddash", "parse", "warning"},
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, task, reason string) error {
	if !n.runFailures {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    fmt.Sprintf("%s failed", strings.TrimSpace(task)),
		message:  reason,
		tags:     []string{"ddash", "run", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "ddash - Test",
		message:  "Notification system test",
		tags:     []string{"ddash", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return services.Wrap(services.ErrNotificationFailed, "notifications", "build request", "", err)
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
		return services.Wrap(services.ErrNotificationFailed, "notifications", "send", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrNotificationFailed, "notifications", "send",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyParseError(context.Context, string, string, error) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
