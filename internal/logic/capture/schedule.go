package capture

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// RunSchedule takes one photo on every tick of the cron expression spec
// (standard 5 fields or a descriptor such as "@every 10m") until ctx is done.
// A tick that fires while the previous capture is still running is skipped,
// so two capture processes never compete for the camera.
func (i *Invoker) RunSchedule(ctx context.Context, spec string, onShot func(*Result)) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	logger := cron.PrintfLogger(log.New(debug.Writer(), "cron: ", 0))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		r := i.Capture(ctx)
		if onShot != nil {
			onShot(r)
		}
	}))

	debug.Info("Schedule %q armed, first capture at %s", spec, sched.Next(time.Now()).Format(time.RFC3339))
	c.Start()

	<-ctx.Done()
	debug.Info("Schedule stopping, waiting for running capture")
	<-c.Stop().Done()
	return nil
}
