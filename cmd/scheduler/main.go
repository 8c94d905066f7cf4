package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"salesbot_backend/internal/adapters"
	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/email"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/followup"
	"salesbot_backend/internal/guard"
	"salesbot_backend/internal/notification"
	"salesbot_backend/internal/scheduler"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/db"
	"salesbot_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.GetStoreBackend() == config.StoreBackendPostgres {
		if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
			p, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			pool = p
			return nil
		}); err != nil {
			log.Error("failed to connect to database", "error", err)
			panic("failed to connect to database: " + err.Error())
		}
		defer pool.Close()
	}

	redisClient, err := adapters.NewRedisClient(cfg)
	if err != nil {
		log.Error("invalid redis configuration", "error", err)
		panic("invalid redis configuration: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	backend, err := adapters.NewConversationBackend(cfg, pool)
	if err != nil {
		log.Error("failed to open conversation store", "error", err)
		panic("failed to open conversation store: " + err.Error())
	}
	store := conversation.NewStore(backend, log, conversation.WithHistoryLimit(cfg.GetHistoryLimit()))

	copyText, err := guard.LoadCopy(cfg.GetGuardCopyPath())
	if err != nil {
		log.Error("failed to load guard copy", "error", err, "path", cfg.GetGuardCopyPath())
		panic("failed to load guard copy: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)
	registry := adapters.NewChannelRegistry(cfg, log)
	deliverer := channel.NewDeliverer(registry, cfg, log)

	// The worker delivers directly; no queue here or a failed task would
	// enqueue itself again.
	notificationModule := notification.New(notification.Options{
		Sender:     deliverer,
		Owner:      adapters.OwnerKey(cfg),
		Mailer:     email.NewSMTPSenderFromConfig(cfg),
		OwnerEmail: cfg.GetOwnerEmail(),
		Copy:       copyText,
	}, log)

	worker, err := scheduler.NewWorker(cfg, notificationModule, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	var wg sync.WaitGroup
	tickLock := followup.NewRedisTickLock(redisClient)
	for _, name := range registry.Names() {
		s := followup.New(followup.Deps{
			Store:    store,
			Sender:   deliverer,
			Copy:     copyText,
			TickLock: tickLock,
			Bus:      eventBus,
			Log:      log,
		}, followup.Config{
			Channel:     name,
			Interval:    cfg.GetFollowUpInterval(),
			Parallelism: cfg.GetFollowUpParallelism(),
			Policy: followup.Policy{
				MinIdle:     cfg.GetFollowUpMinIdle(),
				MaxLate:     cfg.GetFollowUpMaxLate(),
				ReplyWindow: cfg.GetFollowUpReplyWindow(),
			},
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(ctx)
		}()
		log.Info("follow-up scheduler started", "channel", name)
	}

	worker.Run(ctx)
	wg.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
