// Package app wires configuration into a ready harvest engine: the store,
// optional blob offload, optional cross-run lock and the NSQ publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/builtin"
	"github.com/raphaelgruber/catalog-harvester/internal/blob"
	"github.com/raphaelgruber/catalog-harvester/internal/boltstore"
	"github.com/raphaelgruber/catalog-harvester/internal/config"
	"github.com/raphaelgruber/catalog-harvester/internal/db"
	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/lock"
	"github.com/raphaelgruber/catalog-harvester/internal/metrics"
	"github.com/raphaelgruber/catalog-harvester/internal/mongostore"
	"github.com/raphaelgruber/catalog-harvester/internal/queue"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     store.Store
	Blob      blob.Store
	Registry  *backend.Registry
	Engine    *harvest.Engine
	Runner    *harvest.Runner
	Metrics   *metrics.Collector
	Publisher *queue.Publisher

	closers []func(context.Context) error
}

// Options selects optional components.
type Options struct {
	// Publisher connects an NSQ producer so Runner.Enqueue works.
	Publisher bool
}

// New opens every configured component. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: builtin.Registry(), Metrics: metrics.NewCollector()}

	if err := a.open(ctx, opts); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, opts Options) error {
	st, err := OpenStore(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Store = st
	a.onClose(st.Close)

	if a.Blob, err = a.openBlob(); err != nil {
		return err
	}

	var locker lock.Locker = lock.Noop{}
	if a.Config.LockRedisURL != "" {
		r := lock.NewRedis(a.Config.LockRedisURL, a.Logger)
		a.onClose(func(context.Context) error { return r.Close() })
		locker = r
	}

	a.Engine = harvest.New(a.Store, a.Registry, harvest.Options{
		MaxItems:             a.Config.MaxItems,
		PreviewMaxItems:      a.Config.PreviewMaxItems,
		AutoarchiveGraceDays: a.Config.AutoarchiveGraceDays,
		HTTPTimeout:          a.Config.HTTPTimeout,
		UserAgent:            a.Config.UserAgent,
		Blob:                 a.Blob,
		GraphsBucket:         a.Config.GraphsBucket,
		MaxInlineGraphBytes:  a.Config.MaxInlineGraphBytes,
		Locker:               locker,
		LockTTL:              a.Config.LockTTL,
		Hooks: harvest.Hooks{
			Before: []harvest.Hook{a.Metrics.JobStarted},
			After:  []harvest.Hook{a.Metrics.JobFinished},
		},
		Logger: a.Logger,
	})

	var enqueuer harvest.Enqueuer
	if opts.Publisher {
		p, err := queue.NewPublisher(a.QueueConfig(), a.Logger)
		if err != nil {
			return err
		}
		a.Publisher = p
		a.onClose(func(context.Context) error { p.Stop(); return nil })
		enqueuer = p
	}
	a.Runner = harvest.NewRunner(a.Engine, enqueuer, a.Logger)
	return nil
}

// OpenStore opens the store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSurrealDB, "":
		c, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := c.InitSchema(ctx); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		return c, nil
	case config.StoreMongo:
		return mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	case config.StoreBolt:
		return boltstore.Open(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// openBlob returns nil when offload is disabled. The bolt driver reuses the
// bolt store when that is the document store too.
func (a *App) openBlob() (blob.Store, error) {
	cfg := a.Config
	switch cfg.BlobDriver {
	case config.BlobNone:
		return nil, nil
	case config.BlobS3:
		return blob.NewS3(blob.S3Config{
			Region:    cfg.BlobRegion,
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
		})
	case config.BlobMinio:
		m, err := blob.NewMinio(blob.MinioConfig{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Secure:    cfg.BlobSecure,
			Region:    cfg.BlobRegion,
		})
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(cfg.GraphsBucket); err != nil {
			return nil, err
		}
		return m, nil
	case config.BlobBolt:
		if bs, ok := a.Store.(*boltstore.Store); ok {
			return bs, nil
		}
		bs, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		a.onClose(bs.Close)
		return bs, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

// QueueConfig derives the NSQ settings from the configuration.
func (a *App) QueueConfig() queue.Config {
	return queue.Config{
		NsqdAddr:    a.Config.NsqdAddr,
		LookupdAddr: a.Config.NsqLookupdAddr,
		Topic:       a.Config.NsqTopic,
		Channel:     a.Config.NsqChannel,
		MaxInFlight: a.Config.NsqMaxInFlight,
	}
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

// Close releases all components, most recently opened first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
