package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"margin_maker/internal/alert"
	"margin_maker/internal/config"
	"margin_maker/internal/core"
	"margin_maker/internal/credit"
	"margin_maker/internal/exchange/dydx"
	"margin_maker/internal/feed"
	"margin_maker/internal/infrastructure/metrics"
	"margin_maker/internal/order"
	"margin_maker/internal/store"
	"margin_maker/internal/strategy"
	"margin_maker/internal/trigger"
	"margin_maker/pkg/logging"
	"margin_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("margin_maker version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting margin_maker",
		"version", version,
		"pair", cfg.Market.Pair,
		"leverage", cfg.Strategy.Leverage,
	)

	tel, err := telemetry.Setup("margin_maker", version)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start operational server", "error", err)
		}
	}

	notifier := alert.NewManager(logger)
	defer notifier.Close()
	if cfg.Alerts.Telegram.Enabled {
		notifier.AddChannel(alert.NewTelegramChannel(cfg.Alerts.Telegram.BotToken, cfg.Alerts.Telegram.ChatID))
	}
	if cfg.Alerts.Slack.Enabled {
		notifier.AddChannel(alert.NewSlackChannel(cfg.Alerts.Slack.WebhookURL))
	}

	tradeStore, err := store.NewSQLiteStore(cfg.Storage.DatabasePath, logger)
	if err != nil {
		logger.Fatal("Failed to open trade journal", "error", err)
	}
	defer tradeStore.Close()

	venue := dydx.NewExchange(&cfg.Exchange, logger)
	dialer := feed.NewDialer(cfg.Exchange.WebsocketURL, notifier, logger)
	dialer.SetReconnectWait(time.Duration(cfg.Exchange.ReconnectWaitSeconds) * time.Second)
	clock := core.RealClock{}

	monitor := trigger.NewMonitor(dialer, cfg.Market.Pair, clock, notifier, logger)
	sizer := credit.NewSizer(venue, credit.Assets{
		Risk:   cfg.Market.RiskAsset,
		Stable: cfg.Market.StableAsset,
		Quote:  cfg.Market.QuoteAsset,
	}, cfg.Market.Pair, decimal.NewFromFloat(cfg.Strategy.MinCollateralization), logger)
	orders := order.NewController(venue, cfg.Market.Pair, clock, notifier, cfg.Exchange.RateLimitRPS, logger)
	if cfg.Market.TickSize > 0 {
		orders.SetFallbackTick(decimal.NewFromFloat(cfg.Market.TickSize))
	}
	orders.SetPollInterval(time.Duration(cfg.Exchange.OrderPollIntervalSecs) * time.Second)

	params := strategy.Params{
		Pair:              cfg.Market.Pair,
		Leverage:          decimal.NewFromFloat(cfg.Strategy.Leverage),
		RequiredReturn:    decimal.NewFromFloat(cfg.Strategy.RequiredReturn),
		LossTolerance:     decimal.NewFromFloat(cfg.Strategy.LossTolerance),
		EntryDepreciation: decimal.NewFromFloat(cfg.Strategy.EntryDepreciation),
		MinOrderSize:      decimal.NewFromFloat(cfg.Market.MinOrderSize),
		MaxRequotes:       cfg.Strategy.MaxRequotes,
		Cooldown:          time.Duration(cfg.Strategy.CooldownMinutes) * time.Minute,
		SettlementDelay:   time.Duration(cfg.Strategy.SettlementDelaySeconds) * time.Second,
		HaltOnStopLoss:    cfg.Strategy.HaltOnStopLoss,
		WithdrawEnabled:   cfg.Withdrawal.Enabled,
		WithdrawMin:       decimal.NewFromFloat(cfg.Withdrawal.MinBalance),
		QuoteAsset:        cfg.Market.QuoteAsset,
	}

	// Wallet custody stays outside this process: the hook flags the swept
	// balance to the operator instead of signing a withdrawal.
	settle := func(ctx context.Context, balances map[string]decimal.Decimal) error {
		balance := balances[cfg.Market.QuoteAsset]
		logger.Info("Balance ready for withdrawal",
			"asset", cfg.Market.QuoteAsset,
			"balance", balance.String(),
			"address", cfg.Withdrawal.Address)
		notifier.Notify(ctx, "Balance ready for withdrawal",
			fmt.Sprintf("%s %s is clear of settlement; sweep to %s.",
				balance, cfg.Market.QuoteAsset, cfg.Withdrawal.Address),
			map[string]string{"asset": cfg.Market.QuoteAsset, "address": cfg.Withdrawal.Address})
		return nil
	}

	loop := strategy.NewLoop(venue, monitor, sizer, orders, tradeStore, notifier, clock, params, settle, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	err = g.Wait()
	stop()

	if cfg.System.CancelOnExit {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if cerr := orders.CancelOpen(cancelCtx); cerr != nil {
			logger.Error("Failed to sweep resting orders on exit", "error", cerr)
		}
		cancel()
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := metricsServer.Stop(shutdownCtx); serr != nil {
			logger.Warn("Metrics server shutdown failed", "error", serr)
		}
		cancel()
	}

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Info("margin_maker stopped")
	case errors.Is(err, strategy.ErrStopLossHalt):
		logger.Warn("margin_maker stood down after a stop-loss exit")
	default:
		logger.Error("margin_maker exited with error", "error", err)
		os.Exit(1)
	}
}
