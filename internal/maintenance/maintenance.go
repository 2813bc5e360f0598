// Package maintenance runs cron-triggered housekeeping next to the capture
// loop: history pruning and periodic stats reports.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"screenqa/pkg/logx"
)

const historySize = 50

// Job is one scheduled housekeeping task.
type Job struct {
	Name    string
	Spec    string // cron expression or descriptor ("@every 1h")
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Run is one finished job execution.
type Run struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Err      string
}

type Config struct {
	Timezone string // IANA name; empty means local time
}

// Scheduler owns a cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	mu     sync.Mutex
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	jobs   []Job
	ctx    context.Context

	hmu     sync.Mutex
	history []Run
}

func New(cfg Config, log logx.Logger) *Scheduler {
	log = log.With(logx.String("comp", "maintenance"))
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	return &Scheduler{
		log:    log,
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add validates the spec and registers the job. Jobs added after Start are
// scheduled immediately.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("maintenance job needs a name and a func")
	}
	if _, err := s.parser.Parse(j.Spec); err != nil {
		return fmt.Errorf("job %s: invalid spec %q: %w", j.Name, j.Spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	if s.c != nil {
		return s.scheduleLocked(j)
	}
	return nil
}

// Start begins firing jobs. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, j := range s.jobs {
		if err := s.scheduleLocked(j); err != nil {
			s.log.Warn("job not scheduled", logx.String("job", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("maintenance started", logx.Int("jobs", len(s.jobs)), logx.String("tz", s.loc.String()))
}

// Stop halts the cron and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) scheduleLocked(j Job) error {
	ctx := s.ctx
	_, err := s.c.AddFunc(j.Spec, func() { s.runJob(ctx, j) })
	return err
}

// RunNow executes a job by name synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(ctx, *found)
}

func (s *Scheduler) runJob(ctx context.Context, j Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := j.Run(ctx)
	took := time.Since(start)

	r := Run{Job: j.Name, Started: start, Duration: took}
	if err != nil {
		r.Err = err.Error()
		s.log.Warn("job failed", logx.String("job", j.Name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job done", logx.String("job", j.Name), logx.Duration("took", took))
	}
	s.hmu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
	return err
}

// History returns recent runs, oldest first.
func (s *Scheduler) History() []Run {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Run(nil), s.history...)
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
