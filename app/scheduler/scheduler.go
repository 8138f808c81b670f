// Package scheduler runs the delivery sweeps in-process for deployments without an external trigger
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	businessflow "github.com/amirphl/gymdesk/business_flow"
	"github.com/amirphl/gymdesk/config"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (any, error)
	running  atomic.Bool
}

// Scheduler triggers the reminder sweep, the campaign activation sweep and the rule expansion on cron schedules.
// A job whose previous run is still in progress is skipped.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []*job
	logger  *log.Logger
	logFile io.Closer
}

// NewScheduler builds the scheduler. Schedules use six fields (with seconds); an empty schedule disables its job.
func NewScheduler(
	cfg config.SchedulerConfig,
	logCfg config.LoggingConfig,
	sweepFlow businessflow.SweepFlow,
	campaignFlow businessflow.CampaignFlow,
	expansionFlow businessflow.RuleExpansionFlow,
) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	s := &Scheduler{}
	s.initLogger(cfg.LogFilePath, logCfg)

	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(s.logger))),
	)

	candidates := []*job{
		{name: "reminders", schedule: cfg.RemindersSpec, run: func(ctx context.Context) (any, error) {
			return sweepFlow.RunReminderSweep(ctx)
		}},
		{name: "campaigns", schedule: cfg.CampaignsSpec, run: func(ctx context.Context) (any, error) {
			return campaignFlow.RunActivationSweep(ctx)
		}},
		{name: "rules", schedule: cfg.ExpansionSpec, run: func(ctx context.Context) (any, error) {
			return expansionFlow.RunExpansion(ctx)
		}},
	}
	for _, j := range candidates {
		if j.schedule == "" {
			s.logger.Printf("job %s disabled: empty schedule", j.name)
			continue
		}
		s.jobs = append(s.jobs, j)
	}

	return s, nil
}

// initLogger writes to stdout and, when a path is configured, to a rotating file
func (s *Scheduler) initLogger(path string, logCfg config.LoggingConfig) {
	var out io.Writer = os.Stdout
	if path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logCfg.MaxSize,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAge,
			Compress:   logCfg.Compress,
		}
		s.logFile = rotating
		out = io.MultiWriter(os.Stdout, rotating)
	}
	s.logger = log.New(out, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start registers the jobs and starts the cron loop. The returned function stops the
// loop, waits for running jobs and closes the log file.
func (s *Scheduler) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	for _, j := range s.jobs {
		if _, err := s.cron.AddFunc(j.schedule, func() { s.runJob(ctx, j) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", j.schedule, j.name, err)
		}
		s.logger.Printf("job %s scheduled: %s", j.name, j.schedule)
	}
	s.cron.Start()

	return func() {
		cancel()
		<-s.cron.Stop().Done()
		if s.logFile != nil {
			_ = s.logFile.Close()
		}
		s.logger.Println("stopped")
	}, nil
}

// runJob reports whether the job actually ran
func (s *Scheduler) runJob(ctx context.Context, j *job) bool {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Printf("job %s skipped: previous run still in progress", j.name)
		return false
	}
	defer j.running.Store(false)

	start := time.Now()
	res, err := j.run(ctx)
	if err != nil {
		s.logger.Printf("job %s failed after %s: %v", j.name, time.Since(start), err)
		return true
	}
	s.logger.Printf("job %s done in %s: %+v", j.name, time.Since(start), res)
	return true
}
