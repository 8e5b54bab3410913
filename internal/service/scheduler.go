package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPassInterval = 30 * time.Minute

// SchedulerOptions configures the Scheduler.
type SchedulerOptions struct {
	PassInterval   time.Duration
	RunOnStart     bool
	BackupInterval time.Duration // zero disables backups
	Logger         *zap.Logger
}

// Scheduler runs reconciliation passes on a fixed interval and periodic backups.
type Scheduler struct {
	runner         PassRunner
	backupSvc      *BackupService
	passInterval   time.Duration
	runOnStart     bool
	backupInterval time.Duration
	logger         *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new Scheduler. backupSvc may be nil.
func NewScheduler(runner PassRunner, backupSvc *BackupService, opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.PassInterval
	if interval <= 0 {
		interval = defaultPassInterval
	}
	return &Scheduler{
		runner:         runner,
		backupSvc:      backupSvc,
		passInterval:   interval,
		runOnStart:     opts.RunOnStart,
		backupInterval: opts.BackupInterval,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runReconcileLoop()

	if s.backupSvc != nil && s.backupInterval > 0 {
		s.wg.Add(1)
		go s.runBackupLoop()
	}
	s.logger.Info("scheduler started",
		zap.Duration("pass_interval", s.passInterval),
		zap.Duration("backup_interval", s.backupInterval),
	)
}

// Stop stops all scheduled jobs and waits for a running pass to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// runReconcileLoop runs a pass per tick. Passes run inline, so a slow pass
// delays the next tick instead of overlapping it.
func (s *Scheduler) runReconcileLoop() {
	defer s.wg.Done()

	ctx, cancel := s.stopContext()
	defer cancel()

	if s.runOnStart {
		s.runPass(ctx)
	}

	ticker := time.NewTicker(s.passInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if _, err := s.runner.RunPass(ctx); err != nil {
		s.logger.Error("scheduled reconciliation pass failed", zap.Error(err))
	}
}

func (s *Scheduler) runBackupLoop() {
	defer s.wg.Done()

	ctx, cancel := s.stopContext()
	defer cancel()

	ticker := time.NewTicker(s.backupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			path, err := s.backupSvc.Backup(ctx)
			if err != nil {
				s.logger.Error("failed to create backup", zap.Error(err))
				continue
			}
			s.logger.Info("backup created", zap.String("path", path))
		case <-s.stopChan:
			return
		}
	}
}

// stopContext returns a context cancelled when Stop is called.
func (s *Scheduler) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
