// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection used to publish JSON messages.
type Client struct {
	conn       *nats.Conn
	reconnects atomic.Int64
	connected  atomic.Bool
}

// Config holds NATS configuration
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NewClient connects to NATS.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	client := &Client{}
	opts = append(opts,
		nats.ReconnectHandler(func(nc *nats.Conn) {
			client.reconnects.Add(1)
			client.connected.Store(true)
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			client.connected.Store(false)
			logger.Warn("NATS disconnected", "error", err)
		}),
	)

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	client.conn = conn
	client.connected.Store(true)
	return client, nil
}

// Publish marshals data as JSON and publishes it to subject.
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.conn != nil && c.conn.IsConnected()
}

// Reconnects returns the number of reconnections since NewClient.
func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close flushes pending messages and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.connected.Store(false)
	return err
}
