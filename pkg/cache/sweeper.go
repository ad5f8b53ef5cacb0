package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSpec runs the sweep every five minutes regardless of traffic.
const DefaultSweepSpec = "@every 5m"

// Sweeper evicts expired entries of a Store on a cron schedule.
type Sweeper struct {
	cron  *cron.Cron
	store Store
	log   *zap.Logger
}

func NewSweeper(store Store, spec string, log *zap.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{cron: cron.New(), store: store, log: log}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.store.Sweep(); n > 0 {
		s.log.Debug("cache sweep", zap.Int("evicted", n))
	}
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
