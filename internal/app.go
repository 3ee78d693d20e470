// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	router "wallet-engine/internal/api"
	"wallet-engine/internal/api/handler"
	"wallet-engine/internal/cache"
	"wallet-engine/internal/charge"
	"wallet-engine/internal/config"
	"wallet-engine/internal/domain"
	"wallet-engine/internal/events"
	"wallet-engine/internal/ledger"
	"wallet-engine/internal/limit"
	promcollector "wallet-engine/internal/metrics/prometheus"
	"wallet-engine/internal/notify"
	"wallet-engine/internal/reference"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/repository/postgres"
	"wallet-engine/internal/service"
	"wallet-engine/internal/util"
	"wallet-engine/pkg/db"
	"wallet-engine/pkg/messaging"
)

const senderTimeout = 10 * time.Second

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB
	Redis  *redis.Client     // nil unless REDIS_ADDR is set
	NATS   *messaging.Client // nil unless NATS_URL is set

	// Repositories
	ActorRepository        repository.ActorRepository
	WalletRepository       repository.WalletRepository
	TransactionRepository  repository.TransactionRepository
	ChargeRuleRepository   repository.ChargeRuleRepository
	NotificationRepository repository.NotificationRepository

	// Engine
	Charges        *charge.Calculator
	Events         *events.Queue
	SystemWalletID int64

	// Services
	TransactionService service.TransactionService

	// HTTP API
	HTTPHandler http.Handler

	stopBackground context.CancelFunc
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{Logger: util.GetLogger()}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database and apply migrations
	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	if err := db.RunMigrations(ctx, app.DB, app.Logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	app.Logger.Info("Database connection established.")

	// 4. Initialize Repositories
	app.ActorRepository = postgres.NewActorRepository(app.DB)
	app.WalletRepository = postgres.NewWalletRepository(app.DB)
	app.TransactionRepository = postgres.NewTransactionRepository(app.DB)
	app.ChargeRuleRepository = postgres.NewChargeRuleRepository(app.DB)
	app.NotificationRepository = postgres.NewNotificationRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	systemWallet, err := app.ensureSystemWallet(ctx)
	if err != nil {
		return err
	}

	// 5. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := promcollector.NewPrometheusCollector("wallet_engine")
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// 6. Engine components
	charges := charge.NewCalculator(app.ChargeRuleRepository, app.DB, app.Logger)
	if err := charges.Reload(ctx); err != nil {
		return err
	}
	app.Charges = charges

	limits, err := limit.NewEnforcer(cfg.VerificationLimits, cfg.LimitsLocation, app.TransactionRepository)
	if err != nil {
		return fmt.Errorf("failed to configure limits: %w", err)
	}

	var results cache.ResultCache = cache.NoopResultCache{}
	if cfg.RedisAddr != "" {
		app.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := app.Redis.Ping(pingCtx).Err(); err != nil {
			app.Logger.Warn("Redis unreachable, idempotency cache degrades to the database", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		results = cache.NewRedisResultCache(app.Redis, cfg.IdempotencyTTL, app.Logger)
	}

	// 7. Post-commit event fan-out
	subscribers := []events.Subscriber{app.newDispatcher(collector)}
	if cfg.NATSURL != "" {
		client, err := messaging.NewClient(messaging.Config{
			URL:            cfg.NATSURL,
			Name:           "wallet-engine",
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
			ConnectTimeout: 5 * time.Second,
		}, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		app.NATS = client
		subscribers = append(subscribers, events.NewBrokerSubscriber(client, cfg.NATSSubject))
	}
	app.Events = events.NewQueue(events.QueueConfig{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
	}, app.Logger, collector, subscribers...)

	// 8. Initialize Services
	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	app.TransactionService = service.NewTransactionService(service.Dependencies{
		DBBeginner:      app.DB, // This is the DBTxBeginner
		DBExecutor:      app.DB, // This is the DBExecutor
		ActorRepo:       app.ActorRepository,
		WalletRepo:      app.WalletRepository,
		TransactionRepo: app.TransactionRepository,
		Ledger:          ledger.NewLedger(app.WalletRepository, cfg.LockTimeout),
		Charges:         charges,
		Limits:          limits,
		References:      reference.NewGenerator(app.TransactionRepository, app.Logger),
		Events:          app.Events,
		Results:         results,
		Metrics:         collector,
		Logger:          app.Logger,
		BeginTx:         db.BeginTx,
		CommitTx:        db.CommitTx,
		RollbackTx:      db.RollbackTx,
		SystemWalletID:  cfg.SystemWalletID,
	})
	app.Logger.Info("Services initialized.", "system_wallet_id", systemWallet.ID)

	// 9. Initialize HTTP Handlers and Router
	app.HTTPHandler = router.NewRouter(router.Handlers{
		Transactions: handler.NewTransactionHandler(app.TransactionService, app.Logger),
		Wallets:      handler.NewWalletHandler(app.TransactionService, app.Logger),
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, []byte(cfg.JWTSecret), app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	// 10. Background work
	bgCtx, cancel := context.WithCancel(context.Background())
	app.stopBackground = cancel
	go charges.Run(bgCtx, cfg.ChargeRefreshInterval)

	return nil
}

func (app *Application) newDispatcher(collector *promcollector.PrometheusCollector) *notify.Dispatcher {
	channels := app.Config.Notify.Channels
	if len(channels) == 0 {
		channels = notify.DefaultChannels
	}

	var relay notify.Sender = notify.NewLogSender(app.Logger)
	if app.Config.Notify.WebhookURL != "" {
		relay = notify.NewHTTPSender(app.Config.Notify.WebhookURL, senderTimeout)
	}
	senders := make(map[domain.NotificationChannel]notify.Sender, len(channels)+1)
	for _, c := range channels {
		senders[c] = relay
	}
	senders[domain.ChannelWebhook] = notify.NewHTTPSender("", senderTimeout)

	return notify.NewDispatcher(notify.Repositories{
		Transactions:  app.TransactionRepository,
		Wallets:       app.WalletRepository,
		Actors:        app.ActorRepository,
		Notifications: app.NotificationRepository,
	}, app.DB, senders, notify.Config{
		Channels:    channels,
		MaxAttempts: app.Config.Notify.MaxAttempts,
	}, app.Logger, collector)
}

// ensureSystemWallet verifies the configured system wallet, or finds or creates the one
// for SYSTEM_CURRENCY.
func (app *Application) ensureSystemWallet(ctx context.Context) (*domain.Wallet, error) {
	if id := app.Config.SystemWalletID; id != 0 {
		w, err := app.WalletRepository.GetWalletByID(ctx, app.DB, id)
		if err != nil {
			return nil, fmt.Errorf("system wallet %d: %w", id, err)
		}
		if !w.IsSystem {
			return nil, fmt.Errorf("wallet %d is not a system wallet: %w", id, util.ErrInvalidInput)
		}
		app.SystemWalletID = w.ID
		return w, nil
	}

	currency := app.Config.SystemCurrency
	w, err := app.WalletRepository.GetSystemWallet(ctx, app.DB, currency)
	if util.IsError(err, util.ErrNotFound) {
		w = domain.NewSystemWallet(currency)
		err = app.WalletRepository.CreateWallet(ctx, app.DB, w)
		if util.IsError(err, util.ErrDuplicateEntry) {
			// Another instance created it first.
			w, err = app.WalletRepository.GetSystemWallet(ctx, app.DB, currency)
		} else if err == nil {
			app.Logger.Info("System wallet created", "wallet_id", w.ID, "currency", currency)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s system wallet: %w", currency, err)
	}
	app.SystemWalletID = w.ID
	return w, nil
}

// Shutdown gracefully shuts down application resources. Queued events are
// delivered before the connections they need are closed.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.stopBackground != nil {
		app.stopBackground()
	}

	var errs []error
	if app.Events != nil {
		done := make(chan error, 1)
		go func() { done <- app.Events.Close() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to close event queue: %w", err))
			}
			stats := app.Events.Stats()
			app.Logger.Info("Event queue drained.", "published", stats.Published, "dropped", stats.Dropped, "failed", stats.Failed)
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("event queue did not drain: %w", ctx.Err()))
		}
	}
	if app.NATS != nil {
		if err := app.NATS.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close NATS connection: %w", err))
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
		} else {
			app.Logger.Info("Database connection closed.")
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
