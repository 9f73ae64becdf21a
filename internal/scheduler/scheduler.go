package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/config"
	"github.com/mamadbah2/stockapp/internal/querycache"
	"github.com/mamadbah2/stockapp/internal/service/reporting"
)

// SessionPurger drops expired sessions. Stores that expire keys on their own
// (redis) do not need one.
type SessionPurger interface {
	Purge() int
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron         *cron.Cron
	cache        *querycache.Cache
	sessions     SessionPurger
	reportingSvc *reporting.Service
	cfg          config.Config
	location     *time.Location
	logger       *zap.Logger
}

// NewScheduler creates a new scheduler instance. sessions and reportingSvc
// may be nil, which disables their jobs.
func NewScheduler(cfg config.Config, cache *querycache.Cache, sessions SessionPurger, reportingSvc *reporting.Service, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC", zap.String("timezone", cfg.Reporting.Timezone), zap.Error(err))
		loc = time.UTC
	}

	// robfig/cron/v3 default parser is standard cron (5 fields: min, hour, dom, month, dow).
	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:         c,
		cache:        cache,
		sessions:     sessions,
		reportingSvc: reportingSvc,
		cfg:          cfg,
		location:     loc,
		logger:       logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.Cache.PurgeSchedule, s.purge); err != nil {
		s.logger.Error("failed to schedule cache purge", zap.String("schedule", s.cfg.Cache.PurgeSchedule), zap.Error(err))
	}

	if s.reportingSvc != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.exportSnapshot); err != nil {
			s.logger.Error("failed to schedule stock snapshot", zap.String("schedule", s.cfg.Reporting.CronSchedule), zap.Error(err))
		}
	} else {
		s.logger.Info("stock snapshot export disabled")
	}

	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) purge() {
	entries := 0
	if s.cache != nil {
		entries = s.cache.Purge(s.cfg.Cache.MaxIdle)
	}
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Purge()
	}
	s.logger.Info("purge completed", zap.Int("cache_entries", entries), zap.Int("sessions", sessions))
}

func (s *Scheduler) exportSnapshot() {
	s.logger.Info("exporting stock snapshot")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rows, err := s.reportingSvc.ExportSnapshot(ctx, time.Now().In(s.location))
	if err != nil {
		s.logger.Error("failed to export stock snapshot", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	s.logger.Info("stock snapshot exported", zap.String("summary", s.reportingSvc.LowStockSummary(rows)))
}
