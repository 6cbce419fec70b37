// Package scheduling runs periodic housekeeping for long-lived hosts:
// reloading the skill library and dropping idle gateway sessions.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/tracer"
)

// Action identifies a kind of housekeeping job.
type Action string

const (
	ActionSkillsReload Action = "skills_reload"
	ActionSessionReap  Action = "session_reap"
)

const defaultTaskTimeout = time.Minute

// Task binds an action to a schedule. Schedule is a cron expression
// ("*/5 * * * *", "@every 30m") or a Go duration ("30m").
type Task struct {
	Name     string
	Schedule string
	Action   Action
}

// Scheduler runs registered actions on their schedules. Runs of the same
// task never overlap.
type Scheduler struct {
	cron    *cron.Cron
	actions map[Action]func(ctx context.Context) error
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	tasks   map[string]cron.EntryID
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. timeout bounds a single run; <= 0
// uses one minute.
func NewScheduler(timeout time.Duration, l *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		actions: make(map[Action]func(ctx context.Context) error),
		timeout: timeout,
		logger:  logger.Component(l, "scheduler"),
		tasks:   make(map[string]cron.EntryID),
	}
}

// RegisterAction sets the handler of an action.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules task. Task names are unique.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return domain.NewDomainError("Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("unknown action %q for task %q", task.Action, task.Name))
	}
	if _, dup := s.tasks[task.Name]; dup {
		return domain.NewDomainError("Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("duplicate task %q", task.Name))
	}
	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return domain.NewDomainError("Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("task %q: %v", task.Name, err))
	}

	s.tasks[task.Name] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(task, fn) }))
	s.logger.Info("task scheduled", "task", task.Name, "schedule", task.Schedule, "action", task.Action)
	return nil
}

func (s *Scheduler) run(task Task, fn func(ctx context.Context) error) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	ctx, span := tracer.StartSpan(ctx, "scheduler."+string(task.Action))

	start := time.Now()
	err := fn(ctx)
	tracer.Finish(span, err)
	if err != nil {
		s.logger.Warn("scheduled task failed", "task", task.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled task completed", "task", task.Name, "duration", time.Since(start))
}

// Tasks returns the scheduled task names.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	return out
}

// NextRun returns the next run time of a task.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	return e.Next, e.ID != 0 && !e.Next.IsZero()
}

// Start runs the scheduler until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

// ParseSchedule parses a cron expression, falling back to a duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", schedule)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(d), nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps
// sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }
