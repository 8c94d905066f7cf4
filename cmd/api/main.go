package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesbot_backend/internal/adapters"
	"salesbot_backend/internal/adapters/storage"
	"salesbot_backend/internal/admin"
	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/email"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/followup"
	"salesbot_backend/internal/funnel"
	"salesbot_backend/internal/guard"
	apphttp "salesbot_backend/internal/http"
	"salesbot_backend/internal/http/router"
	"salesbot_backend/internal/leads"
	"salesbot_backend/internal/notification"
	"salesbot_backend/internal/orchestrator"
	"salesbot_backend/internal/scheduler"
	"salesbot_backend/internal/webhook"
	"salesbot_backend/platform/ai/openaimodel"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/db"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.GetStoreBackend())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pool := openDatabase(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := adapters.NewRedisClient(cfg)
	if err != nil {
		log.Error("invalid redis configuration", "error", err)
		panic("invalid redis configuration: " + err.Error())
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		log.Warn("REDIS_URL not configured; delivery dedup is per-process and lead notifications run inline")
	}

	backend, err := adapters.NewConversationBackend(cfg, pool)
	if err != nil {
		log.Error("failed to open conversation store", "error", err)
		panic("failed to open conversation store: " + err.Error())
	}
	store := conversation.NewStore(backend, log, conversation.WithHistoryLimit(cfg.GetHistoryLimit()))

	leadRepo, err := adapters.NewLeadRepository(cfg, pool)
	if err != nil {
		log.Error("failed to open lead repository", "error", err)
		panic("failed to open lead repository: " + err.Error())
	}

	copyText, err := guard.LoadCopy(cfg.GetGuardCopyPath())
	if err != nil {
		log.Error("failed to load guard copy", "error", err, "path", cfg.GetGuardCopyPath())
		panic("failed to load guard copy: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	registry := adapters.NewChannelRegistry(cfg, log)
	if len(registry.Names()) == 0 {
		log.Warn("no messaging channels enabled")
	}
	deliverer := channel.NewDeliverer(registry, cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	modelCfg := openaimodel.Config{
		APIKey:             cfg.GetModelAPIKey(),
		BaseURL:            cfg.GetModelBaseURL(),
		Model:              cfg.GetModelName(),
		TranscriptionModel: cfg.GetTranscriptionModel(),
	}
	llm := openaimodel.NewModel(modelCfg)

	leadService := leads.NewService(leadRepo, eventBus, store, cfg.GetLeadDedupWindow(), log)

	deps := orchestrator.Deps{
		Store:       store,
		Sender:      deliverer,
		Replier:     orchestrator.NewModelReplier(llm),
		Guard:       guard.NewPipeline(copyText),
		Leads:       leadService,
		Transcriber: adapters.NewVoiceTranscriber(registry, openaimodel.NewTranscriber(modelCfg)),
		Log:         log,
	}
	if redisClient != nil {
		deps.Tracker = orchestrator.NewRedisTracker(redisClient, orchestrator.DefaultDeliveryTTL)
	}
	if archiver := initMediaArchiver(ctx, cfg, registry, log); archiver != nil {
		deps.Archiver = archiver
	}

	policy := funnel.DefaultPolicy()
	if cfg.GetTurnCeiling() > 0 {
		policy.TurnCeiling = cfg.GetTurnCeiling()
	}
	if cfg.GetMinTurnsFloor() > 0 {
		policy.MinTurnsFloor = cfg.GetMinTurnsFloor()
	}
	engine := orchestrator.New(deps, orchestrator.Config{
		MediaFreshness: cfg.GetMediaFreshnessWindow(),
		ModelTimeout:   cfg.GetModelTimeout(),
		Region:         cfg.GetDefaultRegion(),
		Policy:         policy,
	})

	// Notification module subscribes to domain events (not HTTP-facing)
	notifyOpts := notification.Options{
		Sender:     deliverer,
		Owner:      adapters.OwnerKey(cfg),
		Mailer:     email.NewSMTPSenderFromConfig(cfg),
		OwnerEmail: cfg.GetOwnerEmail(),
		Copy:       copyText,
	}
	if queue, closeQueue := initLeadQueue(cfg, log); queue != nil {
		defer closeQueue()
		notifyOpts.Queue = queue
	}
	notification.New(notifyOpts, log).RegisterHandlers(eventBus)

	if cfg.GetFollowUpInProcess() {
		startFollowUps(ctx, cfg, registry, store, deliverer, copyText, engine.Locks(), redisClient, eventBus, log)
	}

	webhookModule := webhook.NewModule(registry, engine, val, log)
	adminModule := admin.NewModule(admin.NewHandler(store, leadService, eventBus, val, log))

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolHealth(pool),
		Modules: []apphttp.Module{
			webhookModule,
			adminModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr, "channels", registry.Names())
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		webhookModule.Wait()
		log.Info("in-flight turns drained")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// openDatabase returns nil for the file store backend.
func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *pgxpool.Pool {
	if cfg.GetStoreBackend() != config.StoreBackendPostgres {
		return nil
	}

	var pool *pgxpool.Pool
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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")
	return pool
}

// initMediaArchiver returns nil when object storage is not configured; media
// references then stay as the provider sent them.
func initMediaArchiver(ctx context.Context, cfg *config.Config, registry *channel.Registry, log *logger.Logger) *adapters.MediaArchiver {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; inbound media is not archived")
		return nil
	}
	mediaStore, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure media bucket", 5, 2*time.Second, func() error {
		return mediaStore.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", mediaStore.Bucket())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "mediaBucket", mediaStore.Bucket())
	return adapters.NewMediaArchiver(registry, mediaStore)
}

func initLeadQueue(cfg config.RedisConfig, log *logger.Logger) (notification.LeadQueue, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize lead notification queue", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

// startFollowUps runs one follow-up scheduler per enabled channel inside the
// API process. Key locks are shared with the engine so a nudge never races a
// turn of the same conversation.
func startFollowUps(
	ctx context.Context,
	cfg *config.Config,
	registry *channel.Registry,
	store *conversation.Store,
	sender followup.Sender,
	copyText *guard.Copy,
	locks followup.KeyLocker,
	redisClient *redis.Client,
	bus events.Bus,
	log *logger.Logger,
) {
	started := followup.NewRegistry()
	for _, name := range registry.Names() {
		deps := followup.Deps{
			Store:  store,
			Sender: sender,
			Copy:   copyText,
			Locks:  locks,
			Bus:    bus,
			Log:    log,
		}
		if redisClient != nil {
			deps.TickLock = followup.NewRedisTickLock(redisClient)
		}
		s := followup.New(deps, followUpConfig(cfg, name))
		if started.StartOnce(ctx, s) {
			log.Info("follow-up scheduler started", "channel", name, "interval", cfg.GetFollowUpInterval().String())
		}
	}
}

func followUpConfig(cfg config.FollowUpConfig, channelName string) followup.Config {
	return followup.Config{
		Channel:     channelName,
		Interval:    cfg.GetFollowUpInterval(),
		Parallelism: cfg.GetFollowUpParallelism(),
		Policy: followup.Policy{
			MinIdle:     cfg.GetFollowUpMinIdle(),
			MaxLate:     cfg.GetFollowUpMaxLate(),
			ReplyWindow: cfg.GetFollowUpReplyWindow(),
		},
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
