package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/config"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/engine"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/ledger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/predictor"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/sportsdata"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/storage"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/telegram"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/web"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	sportsClient := sportsdata.NewClient(
		cfg.SportsData.BaseURL,
		cfg.SportsData.APIKey,
		sportsdata.ClientConfig{
			Timeout:        cfg.SportsData.Timeout,
			MaxRetries:     cfg.SportsData.MaxRetries,
			RetryDelayBase: cfg.SportsData.RetryDelayBase,
			RetryDelayMax:  cfg.SportsData.RetryDelayMax,
		},
	)

	ledgerClient := ledger.NewClient(
		cfg.Ledger.BaseURL,
		cfg.Ledger.AuthToken,
		ledger.ClientConfig{
			Timeout:        cfg.Ledger.Timeout,
			MaxRetries:     cfg.Ledger.MaxRetries,
			RetryDelayBase: cfg.Ledger.RetryDelayBase,
			RetryDelayMax:  cfg.Ledger.RetryDelayMax,
		},
	)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// A nil *telegram.Client must stay a nil interface so the engine's
	// notifier checks short-circuit.
	var notifier engine.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}

	pred := predictor.Default()
	pred.TypicalDuration = cfg.Resolution.TypicalDuration
	pred.HardCutoff = cfg.Resolution.HardCutoff
	pred.RepeatInterval = cfg.Resolution.RecheckInterval

	resolver := engine.NewResolver(store, sportsClient, cfg.Resolution.Lookback)
	dispatcher := engine.NewDispatcher(store, ledgerClient, notifier)
	scheduler := engine.NewScheduler(store, resolver, dispatcher, pred)
	sweeper := engine.NewSweeper(store, ledgerClient, notifier, cfg.Sweep.Interval, cfg.Sweep.GracePeriod)
	fixtureSync := engine.NewFixtureSync(store, sportsClient, scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consecutiveFailures := 0
	scheduler.CycleResult = func(cycleErr error) {
		if cycleErr != nil {
			consecutiveFailures++
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(cycleErr); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(cfg.Web.ListenAddr, cfg.Web.AdminToken, store, web.Triggers{
			ForcePoll:  scheduler.TriggerPoll,
			ForceSweep: func() error { return sweeper.TriggerSweep(ctx) },
		})
		go func() {
			if err := webServer.Start(); err != nil {
				logger.Error("Admin API server stopped: %v", err)
			}
		}()
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, telegram.Triggers{
			ForcePoll:  scheduler.TriggerPoll,
			ForceSweep: func() error { return sweeper.TriggerSweep(ctx) },
			Status:     func() (string, error) { return statusReport(store, scheduler) },
		})
	}

	var cronRunner *cron.Cron
	if cfg.Sync.Enabled {
		cronRunner = cron.New()
		_, err := cronRunner.AddFunc(cfg.Sync.Schedule, func() {
			if err := fixtureSync.Run(ctx); err != nil {
				logger.Error("Scheduled fixture sync failed: %v", err)
			}
		})
		if err != nil {
			logger.Fatal("Invalid sync schedule %q: %v", cfg.Sync.Schedule, err)
		}
		cronRunner.Start()
		logger.Info("Fixture sync scheduled (%s)", cfg.Sync.Schedule)

		logger.Debug("Running initial fixture sync")
		if err := fixtureSync.Run(ctx); err != nil {
			logger.Error("Initial fixture sync failed: %v", err)
		}
	}

	logger.Info("Starting settlement engine (typical_duration: %v, hard_cutoff: %v, sweep_interval: %v)",
		cfg.Resolution.TypicalDuration,
		cfg.Resolution.HardCutoff,
		cfg.Sweep.Interval,
	)
	scheduler.Start(ctx)
	sweeper.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, cleaning up...")
	scheduler.Stop()
	if cronRunner != nil {
		cronRunner.Stop()
	}
	if webServer != nil {
		webServer.Stop()
	}
	cancel()
	logger.Info("Service stopped")
}

// statusReport renders the store counters and the next scheduled check as a
// plain-text summary for the /status command.
func statusReport(store *storage.Storage, scheduler *engine.Scheduler) (string, error) {
	stats, err := store.Stats()
	if err != nil {
		return "", fmt.Errorf("failed to collect stats: %w", err)
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %d\n", k, stats[k])
	}
	if wake := scheduler.NextWake(); !wake.IsZero() {
		fmt.Fprintf(&b, "next check: %s\n", wake.UTC().Format("2006-01-02 15:04:05 MST"))
	} else {
		b.WriteString("next check: idle\n")
	}
	return b.String(), nil
}
