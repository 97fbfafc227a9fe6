package agent

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartScheduler runs ticks forever: a fixed interval by default, or a
// standard 5-field cron expression when schedule is set (e.g. "*/5 8-20 * * *"
// for every five minutes during business hours). A failed tick never stops
// the loop; the next tick is scheduled unconditionally.
func StartScheduler(ctx context.Context, o *Orchestrator, interval time.Duration, schedule string) {
	var sched cron.Schedule
	if s := strings.TrimSpace(schedule); s != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		parsed, err := parser.Parse(s)
		if err != nil {
			log.Printf("Invalid tick_schedule '%s': %v, falling back to interval %s", s, err, interval)
		} else {
			sched = parsed
			log.Printf("Tick scheduled (cron: %s)", s)
		}
	}
	if sched == nil {
		log.Printf("Tick scheduled every %s", interval)
	}

	go func() {
		for {
			result, err := o.RunTick(ctx)
			switch {
			case err != nil:
				log.Printf("tick failed run=%s err=%v", result.RunID, err)
			case !result.OK():
				log.Printf("no_tick run=%s listed=%d", result.RunID, result.Listed)
			}

			var wait time.Duration
			if sched != nil {
				wait = time.Until(sched.Next(time.Now()))
			} else {
				wait = interval
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				log.Printf("Tick scheduler stopping: %v", ctx.Err())
				return
			}
		}
	}()
}
