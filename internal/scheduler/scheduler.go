package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes notifications older than a retention window
type Pruner interface {
	PruneNotifications(ctx context.Context, retention time.Duration) (int, error)
}

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	cron *cron.Cron
}

// Start schedules the notification sweep on spec (standard cron syntax or
// descriptors such as "@hourly") and starts the scheduler
func Start(p Pruner, spec string, retention time.Duration) (*Scheduler, error) {
	log.Println("Initializing scheduler...")
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { sweep(p, retention) }); err != nil {
		return nil, fmt.Errorf("could not schedule notification sweep %q: %w", spec, err)
	}
	c.Start()
	log.Printf("Notification sweep scheduled %s, retention %v", spec, retention)
	return &Scheduler{cron: c}, nil
}

// Stop waits for a running job to finish
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Println("Scheduler stopped.")
}

func sweep(p Pruner, retention time.Duration) {
	n, err := p.PruneNotifications(context.Background(), retention)
	if err != nil {
		log.Printf("Notification sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Cleaned up %d expired notifications", n)
	}
}
