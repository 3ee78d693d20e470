// internal/notify/sender.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"wallet-engine/internal/domain"
)

// Sender delivers one notification over one channel.
type Sender interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// LogSender records deliveries in the structured log. It stands in for vendor clients
// that live outside this service.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n *domain.Notification) error {
	s.logger.Info("Notification delivered",
		"channel", n.Channel,
		"target", n.Target,
		"recipient_id", n.RecipientID,
		"title", n.Title,
	)
	return nil
}

// HTTPSender POSTs notifications as JSON. With an empty URL it posts to the
// notification's own target, which is how merchant webhooks are delivered.
type HTTPSender struct {
	client *http.Client
	url    string
}

func NewHTTPSender(url string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{client: &http.Client{Timeout: timeout}, url: url}
}

type relayPayload struct {
	Channel     domain.NotificationChannel `json:"channel"`
	Target      string                     `json:"target"`
	RecipientID int64                      `json:"recipient_id"`
	Title       string                     `json:"title"`
	Message     string                     `json:"message"`
}

func (s *HTTPSender) Send(ctx context.Context, n *domain.Notification) error {
	url := s.url
	var body []byte
	if url == "" {
		// Webhook messages already carry their JSON payload.
		url = n.Target
		body = []byte(n.Message)
	} else {
		var err error
		body, err = json.Marshal(relayPayload{
			Channel:     n.Channel,
			Target:      n.Target,
			RecipientID: n.RecipientID,
			Title:       n.Title,
			Message:     n.Message,
		})
		if err != nil {
			return fmt.Errorf("encode notification %d: %w", n.ID, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for notification %d: %w", n.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification %d: %w", n.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver notification %d: unexpected status %d", n.ID, resp.StatusCode)
	}
	return nil
}
