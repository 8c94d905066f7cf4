package scheduler

import (
	"context"
	"fmt"

	"salesbot_backend/internal/events"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// LeadNotifier delivers one owner notification.
type LeadNotifier interface {
	Deliver(ctx context.Context, lead events.LeadCaptured) error
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier LeadNotifier
	log      *logger.Logger
}

func NewWorker(cfg config.RedisConfig, notifier LeadNotifier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		notifier: notifier,
		log:      log,
	}

	mux.HandleFunc(TaskLeadNotify, w.handleLeadNotify)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadNotify(ctx context.Context, task *asynq.Task) error {
	if w.notifier == nil {
		return nil
	}

	payload, err := ParseLeadNotifyPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	lead, err := payload.Event()
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := w.notifier.Deliver(ctx, lead); err != nil {
		w.log.Warn("lead notification attempt failed", "lead_id", payload.LeadID, "error", err)
		return err
	}
	return nil
}
