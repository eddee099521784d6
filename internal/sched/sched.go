// Package sched runs the daemon's recurring maintenance jobs on cron
// schedules. Job panics are contained by the recovery chain; a failing
// job never takes the daemon down.
package sched

import (
	"time"

	"github.com/robfig/cron/v3"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
)

// Standard job schedules, local time. Offset from round hours so the
// jobs never pile up on top of other on-the-hour activity.
const (
	SpecAnalyticsCleanup = "17 3 * * *"
	SpecArchivePrune     = "23 4 * * *"
	SpecDailyReport      = "0 7 * * *"
)

// Scheduler wraps a cron runner with the repo's logging.
type Scheduler struct {
	log  *logger.Logger
	cron *cron.Cron
}

// New creates a stopped scheduler. Add jobs, then Start.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("sched")
	return &Scheduler{
		log:  log,
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
	}
}

// Add registers a named job. Returns an error when the cron expression
// does not parse; the job itself is never invoked during Add.
func (s *Scheduler) Add(name, spec string, job func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		job()
		s.log.Debug("job finished",
			"job", name,
			"elapsed", time.Since(start).String())
	})
	if err != nil {
		return errsys.Wrap(errsys.KindInvalidFormat, err).
			WithMeta("job", name).
			WithMeta("spec", spec)
	}
	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger adapts the repo logger to cron's logging interface so
// recovered panics land in the structured log.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err.Error()}, keysAndValues...)
	c.log.Error(msg, args...)
}
