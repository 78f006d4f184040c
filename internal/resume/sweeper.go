package resume

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the stale-snapshot sweep once an hour.
const DefaultSweepSpec = "@every 1h"

// Sweeper purges stale snapshots on a cron schedule.
type Sweeper struct {
	store *Store
	cron  *cron.Cron
}

// NewSweeper schedules Purge on spec. An empty spec uses DefaultSweepSpec.
func NewSweeper(s *Store, spec string) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	sw := &Sweeper{store: s, cron: cron.New()}
	if _, err := sw.cron.AddFunc(spec, sw.sweep); err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := sw.store.Purge(ctx)
	if err != nil {
		sw.store.log.Warn("stale snapshot sweep failed", "error", err)
		return
	}
	if n > 0 {
		sw.store.log.Info("swept stale snapshots", "count", n)
	}
}

// Start runs a sweep immediately and then on schedule.
func (sw *Sweeper) Start() {
	sw.sweep()
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}
