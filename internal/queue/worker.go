package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/lock"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// SourceRunner runs one harvest of a source.
type SourceRunner interface {
	RunSource(ctx context.Context, idOrSlug string) (*models.HarvestJob, error)
}

// Worker consumes harvest requests and hands them to a SourceRunner.
type Worker struct {
	runner       SourceRunner
	logger       *slog.Logger
	touchEvery   time.Duration
	requeueDelay time.Duration

	ctx      context.Context
	consumer *nsq.Consumer
}

// NewWorker creates a worker. Call Start to begin consuming.
func NewWorker(cfg Config, runner SourceRunner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	touch := cfg.MsgTimeout / 2
	if touch <= 0 {
		touch = 30 * time.Second
	}
	delay := cfg.RequeueDelay
	if delay <= 0 {
		delay = time.Minute
	}
	return &Worker{
		runner:       runner,
		logger:       logger,
		touchEvery:   touch,
		requeueDelay: delay,
		ctx:          context.Background(),
	}
}

// Start connects a consumer to lookupd when configured, else to nsqd.
// Runs started by the worker use ctx.
func (w *Worker) Start(ctx context.Context, cfg Config) error {
	nsqCfg, err := cfg.nsqConfig()
	if err != nil {
		return err
	}
	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, nsqCfg)
	if err != nil {
		return fmt.Errorf("create nsq consumer: %w", err)
	}
	consumer.SetLogger(slogLogger{w.logger}, nsqLogLevel(w.logger))
	consumer.AddHandler(w)

	w.ctx = ctx
	w.consumer = consumer
	if cfg.LookupdAddr != "" {
		w.logger.Info("connecting to nsqlookupd", "addr", cfg.LookupdAddr, "topic", cfg.Topic)
		err = consumer.ConnectToNSQLookupd(cfg.LookupdAddr)
	} else {
		w.logger.Info("connecting to nsqd", "addr", cfg.NsqdAddr, "topic", cfg.Topic)
		err = consumer.ConnectToNSQD(cfg.NsqdAddr)
	}
	if err != nil {
		return fmt.Errorf("connect consumer: %w", err)
	}
	return nil
}

// Stop stops consuming and waits for the in-flight message to finish.
func (w *Worker) Stop() {
	if w.consumer == nil {
		return
	}
	w.consumer.Stop()
	<-w.consumer.StopChan
}

// HandleMessage runs the requested source. Requests for sources that are
// gone, inactive or invalid are finished without a retry. A source busy in
// another run, or a run interrupted by shutdown, is requeued.
func (w *Worker) HandleMessage(message *nsq.Message) error {
	message.DisableAutoResponse()

	req, err := decodeRequest(message.Body)
	if err != nil {
		w.logger.Error("dropping malformed harvest request", "error", err)
		message.Finish()
		return nil
	}
	logger := w.logger.With("source_id", req.SourceID, "attempt", message.Attempts)

	stop := w.keepAlive(message)
	job, err := w.runner.RunSource(w.ctx, req.SourceID)
	stop()

	switch {
	case err == nil:
		logger.Info("harvest finished", "job_id", job.ID, "status", job.Status)
		message.Finish()
	case errors.Is(err, harvest.ErrAlreadyRunning), errors.Is(err, lock.ErrLocked):
		logger.Info("source busy, requeueing", "delay", w.requeueDelay)
		message.Requeue(w.requeueDelay)
	case errors.Is(err, harvest.ErrInterrupted), errors.Is(err, context.Canceled):
		logger.Warn("harvest interrupted, requeueing", "error", err, "delay", w.requeueDelay)
		message.Requeue(w.requeueDelay)
	case errors.Is(err, harvest.ErrSourceInactive), errors.Is(err, store.ErrNotFound):
		logger.Info("harvest request dropped", "reason", err)
		message.Finish()
	default:
		logger.Error("harvest failed", "error", err)
		message.Requeue(-1)
	}
	return nil
}

// keepAlive touches message until the returned func is called, so long runs
// do not exceed msg_timeout.
func (w *Worker) keepAlive(message *nsq.Message) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.touchEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				message.Touch()
			}
		}
	}()
	return func() { close(done) }
}

var (
	_ harvest.Enqueuer = (*Publisher)(nil)
	_ SourceRunner     = (*harvest.Runner)(nil)
	_ nsq.Handler      = (*Worker)(nil)
)
