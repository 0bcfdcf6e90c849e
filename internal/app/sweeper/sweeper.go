// Package sweeper runs the scheduled retention work: quarantine
// directory cleanup and whole-table backup expiry.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openwpsec/guard/pkg/logger"
)

const runTimeout = 10 * time.Minute

// QuarantineSweeper expires old quarantined files.
type QuarantineSweeper interface {
	Sweep() (int, error)
}

// BackupSweeper expires old table dumps and manifests.
type BackupSweeper interface {
	Cleanup(ctx context.Context) (int, error)
}

// Sweeper schedules retention cleanup on a cron spec.
type Sweeper struct {
	cron       *cron.Cron
	quarantine QuarantineSweeper
	backups    BackupSweeper
	spec       string
	log        *logger.Logger
}

// New creates a sweeper. Either collaborator may be nil, in which case
// its half of the sweep is skipped.
func New(quarantine QuarantineSweeper, backups BackupSweeper, spec string, log *logger.Logger) *Sweeper {
	return &Sweeper{
		cron:       cron.New(),
		quarantine: quarantine,
		backups:    backups,
		spec:       spec,
		log:        log,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("retention sweeper started", "schedule", s.spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("retention sweep failed", "error", err.Error())
	}
}

// RunOnce executes one sweep immediately.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if s.quarantine != nil {
		removed, err := s.quarantine.Sweep()
		if err != nil {
			return fmt.Errorf("quarantine sweep: %w", err)
		}
		if removed > 0 {
			s.log.Info("quarantine sweep", "removed", removed)
		}
	}

	if s.backups != nil {
		removed, err := s.backups.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("backup cleanup: %w", err)
		}
		if removed > 0 {
			s.log.Info("backup cleanup", "removed", removed)
		}
	}
	return nil
}
