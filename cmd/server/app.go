package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"anime-notifier/internal/anilist"
	"anime-notifier/internal/config"
	"anime-notifier/internal/notify"
	"anime-notifier/internal/ratelimit"
	"anime-notifier/internal/repository"
	"anime-notifier/internal/service"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *repository.DB
	redis     *repository.RedisSnapshotStore
	anilist   *anilist.Client
	watches   *repository.WatchRepository
	schedules *service.ScheduleCache
	watchlist *service.Watchlist
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := repository.Open(repository.Dialect(cfg.Database.Driver), cfg.Database.DataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	var snapshots service.SnapshotStore = repository.NewScheduleCacheRepository(db)
	if cfg.Cache.Backend == "redis" {
		store, err := repository.NewRedisSnapshotStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.RedisTTL)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.redis = store
		snapshots = store
	}

	a.anilist = anilist.NewClient()
	a.anilist.SetBaseURL(cfg.AniList.BaseURL)
	a.anilist.SetLimiter(ratelimit.NewSequencer(cfg.AniList.RequestInterval))

	a.watches = repository.NewWatchRepository(db)
	a.schedules = service.NewScheduleCache(a.anilist, snapshots, cfg.Cache.Staleness, nil, logger.Named("cache"))
	a.watchlist = service.NewWatchlist(a.watches, a.schedules, logger.Named("watchlist"))

	logger.Info("storage ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("cache_backend", cfg.Cache.Backend),
	)
	return a, nil
}

func (a *app) newBot() (*tele.Bot, error) {
	return notify.NewTelegramBot(a.cfg.Telegram.BotToken, notify.BotOptions{APIURL: a.cfg.Telegram.APIURL})
}

func (a *app) newReconciler(notifier service.Notifier) *service.Reconciler {
	return service.NewReconciler(a.watches, a.schedules, notifier, service.ReconcilerOptions{
		Window:           a.cfg.Reconcile.Window,
		RefreshAfterPass: a.cfg.Reconcile.RefreshAfterPass,
		Logger:           a.logger.Named("reconcile"),
	})
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
