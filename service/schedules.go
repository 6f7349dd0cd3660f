package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Comcast/axon/config"

	"github.com/gorhill/cronexpr"
)

// Schedules solves neurons when their cron expressions fire.
// Expressions may have a seconds field (seven fields in all).
type Schedules struct {
	S         *Service
	Schedules []*config.Schedule

	// Now is the clock.  Defaults to time.Now.
	Now func() time.Time
}

// Run starts a loop for each schedule and waits for them to stop,
// which happens when the context is done.
func (ss *Schedules) Run(ctx context.Context) error {
	now := ss.Now
	if now == nil {
		now = time.Now
	}

	exprs := make([]*cronexpr.Expression, len(ss.Schedules))
	for i, s := range ss.Schedules {
		e, err := cronexpr.Parse(s.Cron)
		if err != nil {
			return err
		}
		exprs[i] = e
	}

	var wg sync.WaitGroup
	for i, s := range ss.Schedules {
		wg.Add(1)
		go func(s *config.Schedule, e *cronexpr.Expression) {
			defer wg.Done()
			ss.loop(ctx, s, e, now)
		}(s, exprs[i])
	}
	wg.Wait()
	return nil
}

func (ss *Schedules) loop(ctx context.Context, s *config.Schedule, e *cronexpr.Expression, now func() time.Time) {
	for {
		next := e.Next(now())
		if next.IsZero() {
			log.Printf("warning: schedule %q for %s never fires again", s.Cron, s.Neuron)
			return
		}
		timer := time.NewTimer(next.Sub(now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		go func() {
			if _, err := ss.S.Solve(ctx, s.Neuron); err != nil {
				log.Printf("ERROR scheduled solve of %s: %v", s.Neuron, err)
			}
		}()
	}
}
