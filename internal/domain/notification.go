// internal/domain/notification.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationChannel is a delivery channel for user-facing messages.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "EMAIL"
	ChannelSMS      NotificationChannel = "SMS"
	ChannelWhatsApp NotificationChannel = "WHATSAPP"
	ChannelPush     NotificationChannel = "PUSH"
	ChannelInApp    NotificationChannel = "IN_APP"
	ChannelWebhook  NotificationChannel = "WEBHOOK"
)

// Valid reports whether c is a known channel.
func (c NotificationChannel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush, ChannelInApp, ChannelWebhook:
		return true
	}
	return false
}

// NotificationStatus tracks delivery of a single notification.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// Notification is one message to one recipient over one channel.
type Notification struct {
	ID            int64               `db:"id" json:"id"`
	RecipientID   int64               `db:"recipient_id" json:"recipient_id"`
	TransactionID int64               `db:"transaction_id" json:"transaction_id"`
	Channel       NotificationChannel `db:"channel" json:"channel"`
	Target        string              `db:"target" json:"target"` // email, phone number, device token or URL
	Title         string              `db:"title" json:"title"`
	Message       string              `db:"message" json:"message"`
	Status        NotificationStatus  `db:"status" json:"status"`
	Attempts      int                 `db:"attempts" json:"attempts"`
	LastError     *string             `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	SentAt        *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
}

// TransactionCompleted is the immutable fact emitted after a transaction commits.
// Subscribers re-fetch current state instead of trusting anything embedded here.
type TransactionCompleted struct {
	EventID          string          `json:"event_id"`
	TransactionID    int64           `json:"transaction_id"`
	Reference        string          `json:"reference"`
	Type             TransactionType `json:"type"`
	SourceActorID    *int64          `json:"source_actor"`
	DestinationActor *int64          `json:"destination_actor"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	CompletedAt      time.Time       `json:"completed_at"`
}
