package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"depotdeck/internal/config"
)

const userAgent = "depotdeck/0.1.0"

// Install describes the title an event refers to.
type Install struct {
	TitleID   string
	TitleName string
	Target    string
	Bytes     uint64
	Duration  time.Duration
}

func (i Install) label() string {
	name := strings.TrimSpace(i.TitleName)
	if name == "" {
		name = "App " + i.TitleID
	}
	return name
}

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyInstallCompleted(ctx context.Context, install Install) error
	NotifyInstallFailed(ctx context.Context, install Install, err error) error
	NotifyInstallCancelled(ctx context.Context, install Install) error
	NotifyUninstalled(ctx context.Context, install Install) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewNoop returns a Service that discards every event.
func NewNoop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyInstallCompleted(ctx context.Context, install Install) error {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Installed %s on %s", install.label(), install.Target)
	if install.Bytes > 0 {
		fmt.Fprintf(&b, "\n%s", humanize.IBytes(install.Bytes))
		if install.Duration > 0 {
			fmt.Fprintf(&b, " in %s", install.Duration.Round(time.Second))
		}
	}
	return n.send(ctx, payload{
		title:   "depotdeck - Installed",
		message: b.String(),
		tags:    []string{"depotdeck", "install", "completed"},
	})
}

func (n *ntfyService) NotifyInstallFailed(ctx context.Context, install Install, err error) error {
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "depotdeck - Error",
		message:  fmt.Sprintf("❌ Install of %s failed: %s", install.label(), detail),
		tags:     []string{"depotdeck", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyInstallCancelled(ctx context.Context, install Install) error {
	return n.send(ctx, payload{
		title:    "depotdeck - Cancelled",
		message:  fmt.Sprintf("⏹ Install of %s cancelled", install.label()),
		tags:     []string{"depotdeck", "install", "cancelled"},
		priority: "low",
	})
}

func (n *ntfyService) NotifyUninstalled(ctx context.Context, install Install) error {
	return n.send(ctx, payload{
		title:   "depotdeck - Uninstalled",
		message: fmt.Sprintf("🗑 Removed %s from %s", install.label(), install.Target),
		tags:    []string{"depotdeck", "uninstall"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "depotdeck - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"depotdeck", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

type noopService struct{}

func (noopService) NotifyInstallCompleted(context.Context, Install) error     { return nil }
func (noopService) NotifyInstallFailed(context.Context, Install, error) error { return nil }
func (noopService) NotifyInstallCancelled(context.Context, Install) error     { return nil }
func (noopService) NotifyUninstalled(context.Context, Install) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
