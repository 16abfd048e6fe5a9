package artifact

import (
	"context"
	"time"

	"codeberg.org/docforge/server/internal/logger"
)

// removes leftover request workspaces
type ScratchJanitor interface {
	RemoveStale(maxAge time.Duration) (int, error)
}

// handles periodic removal of expired artifacts and orphaned scratch space
type Sweeper struct {
	store    *Store
	scratch  ScratchJanitor
	interval time.Duration
	horizon  time.Duration
}

// creates a new sweeper. scratch may be nil
func NewSweeper(store *Store, scratch ScratchJanitor, interval, horizon time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		scratch:  scratch,
		interval: interval,
		horizon:  horizon,
	}
}

// begins the sweep loop and blocks until ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	logger.Info("starting artifact sweeper",
		"interval", s.interval,
		"horizon", s.horizon,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("artifact sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// runs one pass. errors are logged and the next tick tries again
func (s *Sweeper) SweepOnce(ctx context.Context) {
	swept, err := s.store.SweepExpired(ctx)
	if err != nil {
		logger.ErrorErr(err, "artifact sweep failed")
	} else if swept > 0 {
		logger.Info("swept expired artifacts", "count", swept)
	}

	if s.scratch == nil {
		return
	}

	removed, err := s.scratch.RemoveStale(s.horizon)
	if err != nil {
		logger.ErrorErr(err, "scratch cleanup failed")
		return
	}

	if removed > 0 {
		logger.Info("removed orphaned workspaces", "count", removed)
	}
}
