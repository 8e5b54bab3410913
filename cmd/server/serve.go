package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"anime-notifier/internal/bot"
	"anime-notifier/internal/handler"
	"anime-notifier/internal/notify"
	"anime-notifier/internal/service"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the scheduler and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cc)
		},
	}
}

func runServe(ctx context.Context, cc *commandContext) error {
	cfg, logger := cc.cfg, cc.logger
	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram bot not configured: set TELEGRAM_BOT_TOKEN")
	}

	lock := flock.New(cfg.Database.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance is already running (lock %s)", cfg.Database.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tgBot, err := a.newBot()
	if err != nil {
		return err
	}
	sink := notify.NewSink(notify.NewTelegramTransport(tgBot), logger.Named("notify"))
	reconciler := a.newReconciler(sink)

	var backupSvc *service.BackupService
	if cfg.Database.Driver == "sqlite3" {
		backupSvc = service.NewBackupService(a.db, cfg.Backup.Dir, cfg.Backup.MaxBackups, logger.Named("backup"))
	}
	scheduler := service.NewScheduler(reconciler, backupSvc, service.SchedulerOptions{
		PassInterval:   cfg.Reconcile.Interval,
		RunOnStart:     cfg.Reconcile.RunOnStart,
		BackupInterval: cfg.Backup.Interval,
		Logger:         logger.Named("scheduler"),
	})

	bot.NewCommands(a.watchlist, reconciler, a.anilist, sink, cfg.Telegram.AdminChatID, logger.Named("bot")).Register(tgBot)

	var server *http.Server
	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		api := handler.NewHTTPHandler(reconciler, a.watchlist, a.anilist, backupSvc, cfg.HTTP.APIToken, logger.Named("http"))
		api.SetDatabase(a.db)
		api.RegisterRoutes(router)

		server = &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("admin API listening", zap.String("addr", cfg.HTTP.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin API stopped", zap.Error(err))
			}
		}()
	}

	scheduler.Start()
	go tgBot.Start()
	logger.Info("anime notifier started",
		zap.String("bot", tgBot.Me.Username),
		zap.Duration("interval", cfg.Reconcile.Interval),
		zap.Duration("window", cfg.Reconcile.Window),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	tgBot.Stop()
	scheduler.Stop()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down admin API", zap.Error(err))
		}
	}
	return nil
}
