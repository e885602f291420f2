// Command perpsupd is the process host: it wires ConfigStore, BotSupervisor,
// OrderService, PositionTracker, TrailingStopEngine, the event bus, and the
// dashboard HTTP API together over a Postgres-backed durable store, then
// recovers any bots left running before the last shutdown (spec §4.3).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	osignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/service"
	"github.com/nyx-quant/perpsup/internal/infrastructure/config"
	"github.com/nyx-quant/perpsup/internal/infrastructure/exchangeclient"
	"github.com/nyx-quant/perpsup/internal/infrastructure/httpapi"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/metrics"
	signalprovider "github.com/nyx-quant/perpsup/internal/infrastructure/signal"
	"github.com/nyx-quant/perpsup/internal/infrastructure/store"
	"github.com/nyx-quant/perpsup/internal/usecase/botrunner"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/eventbus"
	"github.com/nyx-quant/perpsup/internal/usecase/orderservice"
	"github.com/nyx-quant/perpsup/internal/usecase/positiontracker"
	"github.com/nyx-quant/perpsup/internal/usecase/strategy"
	"github.com/nyx-quant/perpsup/internal/usecase/supervisor"
	"github.com/nyx-quant/perpsup/internal/usecase/trailingstop"
)

// shutdownGrace is the force-exit timer after ShutdownAll and the HTTP
// listener close (spec's graceful-shutdown ambient requirement).
const shutdownGrace = 3 * time.Second

// metricsPollInterval is how often the poller refreshes the gauges that
// have no natural push point (live-bot counts, monitor intervals, bus drops).
const metricsPollInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perpsupd: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level), os.Stdout)
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("perpsupd: received %s, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("perpsupd: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	configRepo := store.NewConfigRepository(db)
	orderRepo := store.NewOrderRepository(db)
	positionRepo := store.NewPositionRepository(db)
	trailingRepo := store.NewTrailingRepository(db)

	configs := configstore.New(configRepo, log)
	events := eventbus.New(log)

	exchange := exchangeclient.New(exchangeclient.Config{BaseURL: cfg.Exchange.BaseURL}, exchangeclient.HMACSigner{}, log)

	orders := orderservice.New(orderRepo, configs, exchange, log)
	positions := positiontracker.New(positionRepo, orders, configs, log)
	trailing := trailingstop.New(trailingRepo, exchange, log)
	factory := strategy.NewFactory()

	// signals is deliberately left as a nil interface (not a nil *Provider)
	// when no upstream API key is configured, since Deps.Signals is consulted
	// with a plain != nil check (spec §1, botrunner.go).
	var signals service.MarketSignalSource
	if provider := buildSignalProvider(ctx, log); provider != nil {
		signals = provider
	}

	newRunner := func(botCfg *entity.BotConfig) (*botrunner.Runner, error) {
		return botrunner.New(botCfg, botrunner.Deps{
			Configs:       configs,
			Exchange:      exchange,
			Orders:        orders,
			Positions:     positions,
			Trailing:      trailing,
			Events:        events,
			Factory:       factory,
			Signals:       signals,
			FillStreamURL: cfg.Exchange.WSURL,
			Log:           log,
		})
	}

	sup := supervisor.New(configs, events, newRunner, log)

	api := httpapi.New(httpapi.Config{
		ListenAddr:     fmt.Sprintf(":%d", cfg.App.ListenPort),
		FrontendOrigin: cfg.App.CORSOrigin,
	}, configs, sup, orders, exchange, factory, events, log)

	if err := sup.RecoverAll(ctx); err != nil {
		log.Error("perpsupd: RecoverAll: %v", err)
	}

	api.Start()
	go pollMetrics(ctx, configs, sup, events, log)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	sup.ShutdownAll(shutdownCtx)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error("perpsupd: httpapi shutdown: %v", err)
	}

	return nil
}

// buildSignalProvider wires the ALPHA_FLOW strategy's upstream data sources
// when any of their API keys are configured; Provider itself leaves the
// corresponding client nil otherwise (spec §1, SPEC_FULL §C).
func buildSignalProvider(ctx context.Context, log *logger.Logger) *signalprovider.Provider {
	cfg := signalprovider.Config{
		CoinGlassAPIKey:        os.Getenv("COINGLASS_API_KEY"),
		WhaleAlertAPIKey:       os.Getenv("WHALEALERT_API_KEY"),
		LunarCrushAPIKey:       os.Getenv("LUNARCRUSH_API_KEY"),
		FedWatchAPIKey:         os.Getenv("FEDWATCH_API_KEY"),
		TradingEconomicsAPIKey: os.Getenv("TRADINGECONOMICS_API_KEY"),
	}
	if v := os.Getenv("WHALEALERT_MIN_VALUE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.WhaleMinValue = f
		}
	}
	if cfg.CoinGlassAPIKey == "" && cfg.WhaleAlertAPIKey == "" && cfg.LunarCrushAPIKey == "" &&
		cfg.FedWatchAPIKey == "" && cfg.TradingEconomicsAPIKey == "" {
		return nil
	}

	provider := signalprovider.NewProvider(cfg)
	if err := provider.Start(ctx); err != nil {
		log.Error("perpsupd: signal provider failed to start: %v", err)
	}
	return provider
}

// pollMetrics refreshes the gauges that have no natural push point: each
// bot's lifecycle status, every live monitor loop's adaptive interval, and
// the event bus's cumulative drop count (SPEC_FULL §D).
func pollMetrics(ctx context.Context, configs *configstore.Store, sup *supervisor.Supervisor, events *eventbus.Bus, log *logger.Logger) {
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()

	var lastDrops int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bots, err := configs.ListAll(ctx)
			if err != nil {
				log.Warn("perpsupd: metrics poll: ListAll: %v", err)
			} else {
				counts := map[entity.BotStatus]int{}
				for _, b := range bots {
					counts[b.Status]++
				}
				for _, status := range []entity.BotStatus{
					entity.BotStatusStopped, entity.BotStatusStarting, entity.BotStatusRunning, entity.BotStatusError,
				} {
					metrics.LiveBotsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
				}
			}

			for botID, runner := range sup.Runners() {
				for _, m := range runner.Monitors() {
					metrics.SetMonitorInterval(botID, string(m.Kind), m.CurrentInterval().Seconds())
				}
			}

			if drops := events.DropCount(); drops > lastDrops {
				metrics.EventBusDropsTotal.Add(float64(drops - lastDrops))
				lastDrops = drops
			}
		}
	}
}
