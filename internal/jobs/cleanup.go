package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StateSweeper is the maintenance half of repository.OAuthStateRepository.
type StateSweeper interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob flips lapsed OAuth states to expired and deletes finished
// states once they are older than the retention window.
type CleanupJob struct {
	states    StateSweeper
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	stopped   chan struct{}
}

func NewCleanupJob(states StateSweeper, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		states:    states,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("state cleanup job started")
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *CleanupJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("state cleanup job stopped")
}

func (j *CleanupJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := j.now()
	j.runCleanup(ctx, "expired oauth states", func(ctx context.Context) (int64, error) {
		return j.states.MarkExpired(ctx, now)
	})
	j.runCleanup(ctx, "stale oauth states", func(ctx context.Context) (int64, error) {
		return j.states.DeleteStale(ctx, now.Add(-j.retention))
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
