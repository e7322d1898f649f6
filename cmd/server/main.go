package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playbook/internal/auth"
	"playbook/internal/config"
	"playbook/internal/database"
	"playbook/internal/logger"
	"playbook/internal/mailer"
	"playbook/internal/quotes"
	"playbook/internal/refresher"
	"playbook/internal/server"
	"playbook/internal/trades"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Build the quote provider chain in configured order.
	chain, err := buildQuoteChain(&cfg, log)
	if err != nil {
		log.Fatal("Failed to build quote providers", zap.Error(err))
	}

	// History always comes from Yahoo; the fallback provider has no
	// candle endpoint.
	yahoo := quotes.NewYahooProvider(&cfg.Quotes, log)

	priceRefresher := refresher.NewRefresher(log, db, chain, cfg.Refresher.Interval)
	coalescer := refresher.NewCoalescer(cfg.Refresher.ThrottleWindow, priceRefresher)

	var notifier mailer.Notifier = mailer.NopNotifier{}
	if cfg.Mail.Enabled {
		notifier = mailer.NewSMTPMailer(&cfg.Mail, log)
	} else {
		log.Warn("Outbound mail disabled, notifications will be dropped")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	tradesSvc := trades.NewService(db, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Interval mode runs the dedicated refresh loop; on-demand mode relies
	// on the coalescer firing from feed requests instead.
	if cfg.Refresher.Mode == "interval" {
		go priceRefresher.Run(ctx)
	} else {
		log.Info("Refresher in on-demand mode, cycles are request-triggered")
	}

	api := server.New(&cfg, log, db, tokens, tradesSvc, coalescer, yahoo, notifier)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: api.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting web server", zap.String("address", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Web server failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}

// buildQuoteChain instantiates providers in the order config lists them.
func buildQuoteChain(cfg *config.Config, log *zap.Logger) (*quotes.Chain, error) {
	providers := make([]quotes.Provider, 0, len(cfg.Quotes.Providers))
	for _, name := range cfg.Quotes.Providers {
		switch name {
		case "yahoo":
			providers = append(providers, quotes.NewYahooProvider(&cfg.Quotes, log))
		case "stooq":
			providers = append(providers, quotes.NewStooqProvider(&cfg.Quotes, log))
		default:
			return nil, fmt.Errorf("unknown quote provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no quote providers configured")
	}
	return quotes.NewChain(log, providers...), nil
}
