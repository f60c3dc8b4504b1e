// Package scheduler runs configured report utterances on cron schedules and
// delivers each reply to a chat channel.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/soyeahso/sprintbot/internal/agent"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/hooks"
	"github.com/soyeahso/sprintbot/internal/logging"
)

// SessionChannel is the session key channel id used for scheduled runs.
const SessionChannel = "schedule"

// Handler answers one utterance. *agent.Router implements it.
type Handler interface {
	Handle(ctx context.Context, key domain.SessionKey, utterance string) (*agent.Reply, error)
}

// Sender delivers a reply. *channel.Registry implements it.
type Sender interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

// JobStatus is a snapshot of one job for status output.
type JobStatus struct {
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	Utterance string    `json:"utterance"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chatId"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"lastRun,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Next      time.Time `json:"next,omitzero"`
}

type job struct {
	cfg     config.JobConfig
	entryID cron.EntryID
	runs    int
	lastRun time.Time
	lastErr string
}

// Scheduler owns a cron instance and the configured jobs.
type Scheduler struct {
	cron    *cron.Cron
	handler Handler
	sender  Sender
	hooks   *hooks.Manager
	log     *logging.Logger

	mu   sync.Mutex
	jobs map[string]*job
	ctx  context.Context
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(handler Handler, sender Sender, log *logging.Logger) *Scheduler {
	log = log.Sub("scheduler")
	clog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		handler: handler,
		sender:  sender,
		log:     log,
		jobs:    make(map[string]*job),
		ctx:     context.Background(),
	}
}

// SetHooks attaches a hook manager; every run emits schedule_run.
func (s *Scheduler) SetHooks(h *hooks.Manager) { s.hooks = h }

// Add validates and schedules a job. Cron expressions use the standard five
// fields or descriptors such as "@daily" and "@every 1h".
func (s *Scheduler) Add(cfg config.JobConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if strings.TrimSpace(cfg.Utterance) == "" {
		return fmt.Errorf("job %q: utterance is required", cfg.Name)
	}
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return fmt.Errorf("job %q: invalid cron expression %q: %w", cfg.Name, cfg.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[cfg.Name]; exists {
		return fmt.Errorf("job %q already scheduled", cfg.Name)
	}

	j := &job{cfg: cfg}
	id, err := s.cron.AddFunc(cfg.Cron, func() { s.run(s.runContext(), j) })
	if err != nil {
		return fmt.Errorf("job %q: %w", cfg.Name, err)
	}
	j.entryID = id
	s.jobs[cfg.Name] = j

	s.log.Info().Str("job", cfg.Name).Str("cron", cfg.Cron).Str("channel", cfg.Channel).Msg("job scheduled")
	return nil
}

// Remove unschedules a job. It reports whether the job existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(j.entryID)
	delete(s.jobs, name)
	return true
}

// Start begins firing jobs. Runs use ctx, so cancelling it aborts
// in-flight scripts.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", n).Msg("scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunNow runs the named job immediately and returns its reply.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*agent.Reply, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, j)
}

// run answers the job's utterance and delivers the reply.
func (s *Scheduler) run(ctx context.Context, j *job) (*agent.Reply, error) {
	start := time.Now()
	cfg := j.cfg
	key := domain.SessionKey{ChannelID: SessionChannel, ChatID: cfg.Name}

	reply, err := s.handler.Handle(ctx, key, cfg.Utterance)
	if err == nil && cfg.Channel != "" {
		err = s.sender.Send(ctx, domain.OutboundMessage{
			ChannelID: cfg.Channel,
			To:        cfg.ChatID,
			Body:      reply.Text,
		})
		if err != nil {
			err = fmt.Errorf("deliver to %s/%s: %w", cfg.Channel, cfg.ChatID, err)
		}
	}

	s.mu.Lock()
	j.runs++
	j.lastRun = start
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	data := map[string]any{
		"job":      cfg.Name,
		"channel":  cfg.Channel,
		"chatId":   cfg.ChatID,
		"ok":       err == nil,
		"duration": time.Since(start).String(),
	}
	if reply != nil {
		data["intent"] = string(reply.Intent)
	}
	if err != nil {
		data["error"] = err.Error()
	}
	s.hooks.Emit(ctx, hooks.EventScheduleRun, data)

	if err != nil {
		s.log.Error().Err(err).Str("job", cfg.Name).Msg("scheduled run failed")
		return reply, err
	}
	s.log.Info().
		Str("job", cfg.Name).
		Str("intent", string(reply.Intent)).
		Dur("duration", time.Since(start)).
		Msg("scheduled run delivered")
	return reply, nil
}

// Jobs returns a snapshot of every job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:      j.cfg.Name,
			Cron:      j.cfg.Cron,
			Utterance: j.cfg.Utterance,
			Channel:   j.cfg.Channel,
			ChatID:    j.cfg.ChatID,
			Runs:      j.runs,
			LastRun:   j.lastRun,
			LastError: j.lastErr,
			Next:      s.cron.Entry(j.entryID).Next,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// cronLogger adapts the zerolog wrapper to cron.Logger.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
