// internal/notify/sender_test.go
package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender(t *testing.T) {
	ctx := context.Background()

	t.Run("relay wraps the notification", func(t *testing.T) {
		var got relayPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		s := NewHTTPSender(srv.URL, time.Second)
		err := s.Send(ctx, &domain.Notification{ID: 1, Channel: domain.ChannelSMS, Target: "+263771000001", Title: "Transfer Sent", Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, domain.ChannelSMS, got.Channel)
		assert.Equal(t, "+263771000001", got.Target)
	})

	t.Run("webhook posts the message verbatim to the target", func(t *testing.T) {
		var body string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
		}))
		defer srv.Close()

		s := NewHTTPSender("", time.Second)
		require.NoError(t, s.Send(ctx, &domain.Notification{ID: 2, Channel: domain.ChannelWebhook, Target: srv.URL, Message: `{"event":"payment.completed"}`}))
		assert.Equal(t, `{"event":"payment.completed"}`, body)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		err := NewHTTPSender(srv.URL, time.Second).Send(ctx, &domain.Notification{ID: 3, Channel: domain.ChannelEmail})
		assert.ErrorContains(t, err, "unexpected status 502")
	})
}
