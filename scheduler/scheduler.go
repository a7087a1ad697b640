package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"listing_intake/logging"
)

// Purger drops rate-limit windows that ended before now.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Prober reports dependency health.
type Prober interface {
	Status(ctx context.Context) (map[string]string, bool)
}

// Scheduler runs housekeeping jobs: a cron-driven purge of expired
// rate-limit windows and an optional health probe on a fixed interval.
type Scheduler struct {
	purgeCron      string
	healthInterval time.Duration
	purgers        map[string]Purger
	prober         Prober
	cron           *cron.Cron
	ticker         *time.Ticker
	stopCh         chan struct{}
	stopOnce       sync.Once
	now            func() time.Time
}

func New(purgeCron string, healthInterval time.Duration) *Scheduler {
	return &Scheduler{
		purgeCron:      purgeCron,
		healthInterval: healthInterval,
		purgers:        make(map[string]Purger),
		cron:           cron.New(),
		stopCh:         make(chan struct{}),
		now:            time.Now,
	}
}

// AddPurger registers a store whose expired windows are purged on every run.
func (s *Scheduler) AddPurger(name string, p Purger) {
	s.purgers[name] = p
}

// SetProber registers the health probe run every health interval.
func (s *Scheduler) SetProber(p Prober) {
	s.prober = p
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.purgeCron != "" && len(s.purgers) > 0 {
		logging.Info("starting rate-limit purge", "cron", s.purgeCron)
		_, err := s.cron.AddFunc(s.purgeCron, func() {
			s.PurgeNow(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	}

	if s.prober != nil && s.healthInterval > 0 {
		s.ticker = time.NewTicker(s.healthInterval)
		go s.pollHealth(ctx)
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// PurgeNow runs every purger once and returns the total rows removed.
// A failing purger is logged and does not stop the others.
func (s *Scheduler) PurgeNow(ctx context.Context) int64 {
	names := make([]string, 0, len(s.purgers))
	for name := range s.purgers {
		names = append(names, name)
	}
	sort.Strings(names)

	now := s.now()
	var total int64
	for _, name := range names {
		n, err := s.purgers[name].Purge(ctx, now)
		if err != nil {
			logging.Error("rate-limit purge failed", "store", name, "err", err)
			continue
		}
		if n > 0 {
			logging.Info("purged expired rate-limit windows", "store", name, "rows", n)
		}
		total += n
	}
	return total
}

func (s *Scheduler) pollHealth(ctx context.Context) {
	for {
		select {
		case <-s.ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			checks, healthy := s.prober.Status(probeCtx)
			cancel()
			if !healthy {
				logging.Warn("dependency unhealthy", "checks", checks)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
