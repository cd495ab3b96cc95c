package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seenimoa/stockpulse/pkg/models"
)

const jobTimeout = 45 * time.Minute

// Scheduler runs the daily and weekly batches on cron schedules.
type Scheduler struct {
	c *cron.Cron
}

// NewScheduler registers the daily and weekly jobs under the given cron
// specs. An empty spec disables that job.
func NewScheduler(p *Pipeline, dailySpec, weeklySpec string) (*Scheduler, error) {
	c := cron.New()

	if dailySpec != "" {
		if _, err := c.AddFunc(dailySpec, func() { runJob("daily", p.Daily) }); err != nil {
			return nil, fmt.Errorf("daily schedule %q: %w", dailySpec, err)
		}
	}
	if weeklySpec != "" {
		if _, err := c.AddFunc(weeklySpec, func() { runJob("weekly", p.Weekly) }); err != nil {
			return nil, fmt.Errorf("weekly schedule %q: %w", weeklySpec, err)
		}
	}
	return &Scheduler{c: c}, nil
}

// Start begins executing scheduled jobs in the background.
func (s *Scheduler) Start() { s.c.Start() }

// Stop cancels the schedule. The returned context is done once any running
// job has finished.
func (s *Scheduler) Stop() context.Context { return s.c.Stop() }

func runJob(kind string, job func(context.Context, time.Time) (*models.RunSummary, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := job(ctx, time.Now().UTC()); err != nil {
		log.Printf("pipeline: scheduled %s run failed: %v", kind, err)
	}
}
