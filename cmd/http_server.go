package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/razorpay-reconciliation/internal/auth"
	"github.com/frahmantamala/razorpay-reconciliation/internal/checkout"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport/rest"
	"github.com/frahmantamala/razorpay-reconciliation/internal/user"
	"github.com/frahmantamala/razorpay-reconciliation/internal/webhook"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server for checkout, provider callbacks, webhooks and the admin API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	deps, err := initializeDependencies(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router := chi.NewRouter()
	if err := setupRoutes(router, deps); err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "razorpay", deps.Config.Razorpay)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if deps.Config.Sync.Enabled {
		sweeper := deps.Sweeper()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sweeper.Run(ctx); err != nil {
				deps.Logger.Error("sync sweeper stopped", "error", err)
			}
		}()
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.EventBus.Drain(shutdownCtx); err != nil {
			deps.Logger.Warn("platform notifications still running at shutdown", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			stop()
			wg.Wait()
			os.Exit(1)
		}
	}

	stop()
	wg.Wait()
	deps.Logger.Info("Server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger
	base := transport.NewBaseHandler(logger)

	var validator *middleware.OpenAPIValidator
	if cfg.Server.OpenAPIPath != "" {
		v, err := middleware.NewOpenAPIValidator(cfg.Server.OpenAPIPath, logger)
		if err != nil {
			return err
		}
		validator = v
	}

	handlers := rest.Handlers{
		Auth: auth.NewHandler(deps.Auth, logger),
		RBAC: auth.NewRBACAuthorization(auth.NewPermissionChecker(), logger),
		User: user.NewHandler(deps.Users, logger),
		Checkout: checkout.NewHandler(base, deps.Checkout, checkout.Redirects{
			SuccessURL: cfg.Razorpay.SuccessRedirectURL,
			FailureURL: cfg.Razorpay.FailureRedirectURL,
		}),
		Webhook:   webhook.NewHandler(base, deps.Webhook),
		Order:     order.NewHandler(base, deps.Orders),
		Payment:   payment.NewHandler(base, deps.Payments),
		Reconcile: reconcile.NewHandler(base, deps.Engine, deps.EventLog),
		Review:    review.NewHandler(base, deps.Review),
		Validator: validator,
	}

	rest.RegisterAllRoutes(router, deps.DB.DB, handlers, rest.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,

		ConflictBacklogWarn: cfg.Server.ConflictBacklogWarn,
	}, logger)
	return nil
}

