package autosave

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"halligan-rms/config"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

// Scheduler periodically persists the in-memory workbook to its backing
// file so a crash loses at most one interval of edits.
type Scheduler struct {
	cfg    *config.AppConfig
	store  *workbook.Store
	logger *utils.Logger
	cron   *cron.Cron
	saves  atomic.Int64
	fails  atomic.Int64
}

func New(cfg *config.AppConfig, store *workbook.Store, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, store: store, logger: logger, cron: cron.New()}
}

// Start registers the save job and begins the schedule. Disabled autosave is
// a no-op so callers never branch.
func (s *Scheduler) Start() error {
	if !s.cfg.Autosave.Enabled {
		if s.logger != nil {
			s.logger.Printf("autosave disabled")
		}
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Autosave.CronSpec, s.save); err != nil {
		return err
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.Printf("autosave started schedule=%s path=%s", s.cfg.Autosave.CronSpec, s.store.Path())
	}
	return nil
}

// Stop halts the schedule, waits out any in-flight save and writes one final
// snapshot so shutdown never discards pending edits.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.cfg.Autosave.Enabled {
		s.save()
	}
	return nil
}

// Counts reports lifetime save attempts for the health endpoint.
func (s *Scheduler) Counts() (saves, fails int64) {
	return s.saves.Load(), s.fails.Load()
}

func (s *Scheduler) save() {
	if err := s.store.Persist(); err != nil {
		s.fails.Add(1)
		if s.logger != nil {
			s.logger.Errorf("autosave failed: %v", err)
		}
		return
	}
	s.saves.Add(1)
	if s.logger != nil {
		s.logger.Printf("autosave ok path=%s", s.store.Path())
	}
}
