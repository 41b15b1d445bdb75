package cmd

import (
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/auth"
	authPostgres "github.com/frahmantamala/razorpay-reconciliation/internal/auth/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/checkout"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	orderPostgres "github.com/frahmantamala/razorpay-reconciliation/internal/order/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	paymentPostgres "github.com/frahmantamala/razorpay-reconciliation/internal/payment/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/platform"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	reconcilePostgres "github.com/frahmantamala/razorpay-reconciliation/internal/reconcile/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
	reviewPostgres "github.com/frahmantamala/razorpay-reconciliation/internal/review/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/signature"
	"github.com/frahmantamala/razorpay-reconciliation/internal/syncer"
	"github.com/frahmantamala/razorpay-reconciliation/internal/user"
	userPostgres "github.com/frahmantamala/razorpay-reconciliation/internal/user/postgres"
	"github.com/frahmantamala/razorpay-reconciliation/internal/webhook"
	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

// Dependencies is the fully wired application shared by every command.
type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Logger   *slog.Logger
	EventBus *events.EventBus
	Razorpay *razorpay.Client
	Platform *platform.Client

	Orders   *order.Service
	Payments *payment.Service
	Review   *review.Service
	EventLog *reconcilePostgres.EventLogRepository
	Engine   *reconcile.Engine
	Checkout *checkout.Service
	Webhook  *webhook.Service
	Auth     *auth.Service
	Users    *user.Service
}

func initializeDependencies(cfg *internal.Config) (*Dependencies, error) {
	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	bus := events.NewEventBus(log, events.WithHandlerTimeout(platformHandlerTimeout(cfg.Platform)))

	rzp := razorpay.NewClient(razorpay.Config{
		BaseURL:    cfg.Razorpay.BaseURL(),
		KeyID:      cfg.Razorpay.KeyID,
		KeySecret:  cfg.Razorpay.KeySecret,
		Timeout:    cfg.Razorpay.Timeout,
		MaxRetries: cfg.Razorpay.MaxRetries,
	}, log)

	orders := order.NewService(orderPostgres.NewOrderRepository(gdb), rzp, cfg.Razorpay.Currencies(), log)
	payments := payment.NewService(paymentPostgres.NewPaymentRepository(gdb), rzp, bus, log)
	reviews := review.NewService(reviewPostgres.NewConflictRepository(gdb), bus, log)
	eventLog := reconcilePostgres.NewEventLogRepository(db)

	engine := reconcile.NewEngine(orders, payments, reviews, rzp, eventLog, bus,
		reconcile.Config{ExpireAfter: cfg.Sync.ExpireAfter}, log)

	verifier := signature.NewVerifier(cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret)
	assets := platform.NewAssetResolver(cfg.Platform.AssetBaseURL, cfg.Razorpay.Logo, cfg.Platform.DefaultLogo)

	checkoutService := checkout.NewService(orders, payments, verifier, rzp, engine, assets, bus, checkout.Options{
		KeyID:              cfg.Razorpay.KeyID,
		MerchantName:       cfg.Razorpay.MerchantName,
		ThemeColor:         cfg.Razorpay.ThemeColor,
		CallbackURL:        cfg.Razorpay.CallbackURL,
		VerifyPaymentOnAPI: cfg.Razorpay.VerifyPaymentOnAPI,
	}, log)

	var platformClient *platform.Client
	if cfg.Platform.BaseURL != "" {
		platformClient = platform.NewClient(platform.Config{
			BaseURL:    cfg.Platform.BaseURL,
			APIToken:   cfg.Platform.APIToken,
			Timeout:    cfg.Platform.Timeout,
			MaxRetries: cfg.Platform.MaxRetries,
		}, log)
		platform.NewEventHandler(platformClient, platform.Options{
			OrderStatus:     cfg.Razorpay.OrderStatus,
			GenerateInvoice: cfg.Razorpay.GenerateInvoice,
			InvoiceStatus:   cfg.Razorpay.InvoiceStatus,
		}, log).RegisterEventHandlers(bus)
	} else {
		log.Warn("platform base_url is empty, paid orders will not be reported to the platform")
	}

	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.RefreshSecret,
		cfg.Security.AccessTokenDuration, cfg.Security.RefreshTokenDuration)
	authService := auth.NewService(authPostgres.NewRepository(gdb), tokens, cfg.Security.BCryptCost, log)
	users := user.NewService(userPostgres.NewRepository(gdb), authService.HashPassword, log)

	return &Dependencies{
		Config:   cfg,
		DB:       db,
		Gorm:     gdb,
		Logger:   log,
		EventBus: bus,
		Razorpay: rzp,
		Platform: platformClient,
		Orders:   orders,
		Payments: payments,
		Review:   reviews,
		EventLog: eventLog,
		Engine:   engine,
		Checkout: checkoutService,
		Webhook:  webhook.NewService(verifier, engine, log),
		Auth:     authService,
		Users:    users,
	}, nil
}

// Sweeper builds the stale order sweeper from the sync settings.
func (d *Dependencies) Sweeper() *syncer.Sweeper {
	return syncer.NewSweeper(d.Orders, d.Engine, syncer.Config{
		Interval:   d.Config.Sync.Interval,
		StaleAfter: d.Config.Sync.StaleAfter,
		BatchSize:  d.Config.Sync.BatchSize,
		MaxWorkers: d.Config.Sync.MaxWorkers,
		QueueSize:  d.Config.Sync.QueueSize,
		JobTimeout: d.Config.Razorpay.Timeout * time.Duration(d.Config.Razorpay.MaxRetries+2),
	}, d.Logger)
}

// platformHandlerTimeout covers every retry of one platform notification.
func platformHandlerTimeout(cfg internal.PlatformConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return time.Minute
	}
	return cfg.Timeout * time.Duration(cfg.MaxRetries+2)
}

func (d *Dependencies) Close() {
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}
