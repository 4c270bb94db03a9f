package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job ids.
const (
	JobSweepSessions     = "sweep-sessions"
	JobFlushCatalogCache = "flush-catalog-cache"
)

// Sweeper drops expired visitor sessions.
type Sweeper interface {
	Sweep()
}

// Flusher drops cached data.
type Flusher interface {
	Flush(ctx context.Context) error
}

// SweepSessionsJob closes the sessions of visitors that went idle.
func SweepSessionsJob(sw Sweeper) Job {
	return Job{
		ID:          JobSweepSessions,
		Name:        "Sweep sessions",
		Description: "Close and forget idle visitor sessions",
		Schedule:    "every 5 minutes",
		Definition:  gocron.DurationJob(5 * time.Minute),
		Singleton:   true,
		Run: func(ctx context.Context) error {
			sw.Sweep()
			return nil
		},
	}
}

// FlushCatalogCacheJob empties the catalog listing cache once a day, catching writes that bypassed it.
func FlushCatalogCacheJob(f Flusher) Job {
	return Job{
		ID:          JobFlushCatalogCache,
		Name:        "Flush catalog cache",
		Description: "Drop the cached product, event and manual listings",
		Schedule:    "daily at 04:00",
		Definition:  gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(4, 0, 0))),
		Singleton:   true,
		Run:         f.Flush,
	}
}
