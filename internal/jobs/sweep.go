package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/config"
)

// GrantSweeper is the part of the grant store the sweep job needs.
type GrantSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepJob removes expired grants on a fixed interval, once at start and
// then on every tick, until Stop is called.
type SweepJob struct {
	grants   GrantSweeper
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweepJob(grants GrantSweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		grants:   grants,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("grant sweep job started")
}

// Stop waits for an in-flight sweep to finish. Safe to call more than once.
func (j *SweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("grant sweep job stopped")
	})
}

func (j *SweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SweepRunTimeout)
	defer cancel()

	count, err := j.grants.DeleteExpired(ctx, j.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired grants")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("swept expired grants")
	}
}
