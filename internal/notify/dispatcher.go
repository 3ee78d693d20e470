// internal/notify/dispatcher.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/metrics"
	"wallet-engine/internal/repository"

	"github.com/sony/gobreaker"
)

// DefaultChannels are used when no channels are configured.
var DefaultChannels = []domain.NotificationChannel{
	domain.ChannelEmail,
	domain.ChannelSMS,
	domain.ChannelPush,
	domain.ChannelInApp,
}

// Config configures the dispatcher.
type Config struct {
	// Channels every recipient is notified on, when a target exists for them.
	Channels []domain.NotificationChannel

	// MaxAttempts per notification (default: 3)
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number between retries (default: 200ms)
	RetryBackoff time.Duration

	// BreakerTimeout is how long a tripped channel stays open (default: 30s)
	BreakerTimeout time.Duration
}

// Repositories groups the stores the dispatcher re-reads from.
type Repositories struct {
	Transactions  repository.TransactionRepository
	Wallets       repository.WalletRepository
	Actors        repository.ActorRepository
	Notifications repository.NotificationRepository
}

// Dispatcher turns completion events into notification records and delivers them.
// It runs on the event queue's workers, never inside a database transaction.
type Dispatcher struct {
	repos    Repositories
	q        repository.DBExecutor
	senders  map[domain.NotificationChannel]Sender
	breakers map[domain.NotificationChannel]*gobreaker.CircuitBreaker
	config   Config
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewDispatcher creates a Dispatcher. Channels without a Sender are skipped.
func NewDispatcher(
	repos Repositories,
	q repository.DBExecutor,
	senders map[domain.NotificationChannel]Sender,
	config Config,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Dispatcher {
	if len(config.Channels) == 0 {
		config.Channels = DefaultChannels
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 200 * time.Millisecond
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	d := &Dispatcher{
		repos:    repos,
		q:        q,
		senders:  senders,
		breakers: make(map[domain.NotificationChannel]*gobreaker.CircuitBreaker, len(senders)),
		config:   config,
		logger:   logger,
		metrics:  collector,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
	for channel := range senders {
		d.breakers[channel] = d.newBreaker(channel)
	}
	return d
}

func (d *Dispatcher) newBreaker(channel domain.NotificationChannel) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(channel),
		MaxRequests: 1,
		Timeout:     d.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Warn("Notification circuit breaker state changed",
				"channel", name,
				"from", from.String(),
				"to", to.String(),
			)
			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			d.metrics.RecordCircuitState(name, state)
		},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name identifies the dispatcher as an event subscriber.
func (d *Dispatcher) Name() string { return "notifications" }

// Handle implements events.Subscriber.
func (d *Dispatcher) Handle(ctx context.Context, evt domain.TransactionCompleted) error {
	return d.OnCompleted(ctx, evt)
}

// OnCompleted re-reads the transaction and its parties, then records and sends one
// notification per recipient per channel. The returned error aggregates delivery failures;
// the transaction itself is never affected.
func (d *Dispatcher) OnCompleted(ctx context.Context, evt domain.TransactionCompleted) error {
	p, err := d.load(ctx, evt.TransactionID)
	if err != nil {
		return err
	}

	var errs []error
	for _, m := range compose(p) {
		for _, channel := range d.config.Channels {
			target, ok := targetFor(channel, m.recipient)
			if !ok {
				continue
			}
			if err := d.dispatch(ctx, p.tx, m.recipient.ID, channel, target, m.title, m.body); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if p.tx.Type == domain.TransactionTypePayment && p.receiver != nil &&
		p.receiver.Role == domain.ActorRoleMerchant && p.receiver.WebhookURL != nil && *p.receiver.WebhookURL != "" {
		if err := d.sendWebhook(ctx, evt, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) load(ctx context.Context, transactionID int64) (parties, error) {
	var p parties
	tx, err := d.repos.Transactions.GetTransactionByID(ctx, d.q, transactionID)
	if err != nil {
		return p, fmt.Errorf("notify: failed to load transaction %d: %w", transactionID, err)
	}
	p.tx = tx

	p.senderWallet, err = d.repos.Wallets.GetWalletByID(ctx, d.q, tx.SourceWalletID)
	if err != nil {
		return p, fmt.Errorf("notify: failed to load source wallet %d: %w", tx.SourceWalletID, err)
	}
	if p.senderWallet.ActorID != nil {
		p.sender, err = d.repos.Actors.GetActorByID(ctx, d.q, *p.senderWallet.ActorID)
		if err != nil {
			return p, fmt.Errorf("notify: failed to load sender %d: %w", *p.senderWallet.ActorID, err)
		}
	}

	if tx.DestWalletID != nil {
		p.receiverWlt, err = d.repos.Wallets.GetWalletByID(ctx, d.q, *tx.DestWalletID)
		if err != nil {
			return p, fmt.Errorf("notify: failed to load destination wallet %d: %w", *tx.DestWalletID, err)
		}
		if p.receiverWlt.ActorID != nil {
			p.receiver, err = d.repos.Actors.GetActorByID(ctx, d.q, *p.receiverWlt.ActorID)
			if err != nil {
				return p, fmt.Errorf("notify: failed to load receiver %d: %w", *p.receiverWlt.ActorID, err)
			}
		}
	}
	return p, nil
}

func targetFor(channel domain.NotificationChannel, a *domain.Actor) (string, bool) {
	switch channel {
	case domain.ChannelEmail:
		if a.Email == nil || *a.Email == "" {
			return "", false
		}
		return *a.Email, true
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return a.PhoneNumber, a.PhoneNumber != ""
	case domain.ChannelPush, domain.ChannelInApp:
		return "user_" + strconv.FormatInt(a.ID, 10), true
	default:
		return "", false
	}
}

// webhookPayload is the body POSTed to a merchant's webhook URL.
type webhookPayload struct {
	Event        string                      `json:"event"`
	Transaction  domain.TransactionCompleted `json:"transaction"`
	MerchantCode *string                     `json:"merchant_code,omitempty"`
	Currency     string                      `json:"currency"`
}

func (d *Dispatcher) sendWebhook(ctx context.Context, evt domain.TransactionCompleted, p parties) error {
	body, err := json.Marshal(webhookPayload{
		Event:        "payment.completed",
		Transaction:  evt,
		MerchantCode: p.receiver.MerchantCode,
		Currency:     p.tx.Currency,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to encode webhook for %s: %w", p.tx.Reference, err)
	}
	return d.dispatch(ctx, p.tx, p.receiver.ID, domain.ChannelWebhook, *p.receiver.WebhookURL, "Payment Received", string(body))
}

// dispatch persists a PENDING record, attempts delivery and stores the final status.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	tx *domain.Transaction,
	recipientID int64,
	channel domain.NotificationChannel,
	target, title, body string,
) error {
	sender, ok := d.senders[channel]
	if !ok {
		return nil
	}

	n := &domain.Notification{
		RecipientID:   recipientID,
		TransactionID: tx.ID,
		Channel:       channel,
		Target:        target,
		Title:         title,
		Message:       body,
		Status:        domain.NotificationStatusPending,
		CreatedAt:     d.now(),
	}
	if err := d.repos.Notifications.CreateNotification(ctx, d.q, n); err != nil {
		return fmt.Errorf("notify: failed to record %s notification for %s: %w", channel, tx.Reference, err)
	}

	sendErr := d.deliver(ctx, sender, n)
	if sendErr == nil {
		sentAt := d.now()
		n.Status = domain.NotificationStatusSent
		n.SentAt = &sentAt
		n.LastError = nil
	} else {
		msg := sendErr.Error()
		n.Status = domain.NotificationStatusFailed
		n.LastError = &msg
		d.logger.Warn("Notification delivery failed",
			"channel", channel,
			"reference", tx.Reference,
			"recipient_id", recipientID,
			"attempts", n.Attempts,
			"error", sendErr,
		)
	}
	d.metrics.RecordNotification(string(channel), sendErr == nil)

	if err := d.repos.Notifications.UpdateNotificationStatus(ctx, d.q, n); err != nil {
		return errors.Join(sendErr, fmt.Errorf("notify: failed to update notification %d: %w", n.ID, err))
	}
	if sendErr != nil {
		return fmt.Errorf("notify: %s to %s for %s: %w", channel, target, tx.Reference, sendErr)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, sender Sender, n *domain.Notification) error {
	breaker := d.breakers[n.Channel]
	var lastErr error
	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		n.Attempts = attempt
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, sender.Send(ctx, n)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		if attempt < d.config.MaxAttempts {
			if err := d.sleep(ctx, d.config.RetryBackoff*time.Duration(attempt)); err != nil {
				return errors.Join(lastErr, err)
			}
		}
	}
	return lastErr
}
