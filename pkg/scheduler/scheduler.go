// Package scheduler runs recurring transfers on cron expressions.
package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"s3transfer/pkg/models"
)

// Submitter is the slice of the orchestrator the scheduler needs.
type Submitter interface {
	Submit(req models.TransferRequest) (*models.TransferOperation, error)
}

// Schedule is a recurring transfer definition. Each firing submits a fresh
// TransferRequest; operations from earlier firings are independent.
type Schedule struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	CronExpr  string                 `json:"cron_expr"`
	Enabled   bool                   `json:"enabled"`
	Request   models.TransferRequest `json:"request"`
	LastRun   time.Time              `json:"last_run"`
	LastOpID  string                 `json:"last_operation_id,omitempty"`
	NextRun   time.Time              `json:"next_run"`
	RunCount  int                    `json:"run_count"`
	FailCount int                    `json:"fail_count"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Scheduler manages recurring transfer schedules on top of a cron runner.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	submitter Submitter
	log       *logrus.Entry
	running   bool
}

// New creates a stopped scheduler.
func New(submitter Submitter) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
		submitter: submitter,
		log:       logrus.WithField("component", "scheduler"),
	}
}

// Start begins firing enabled schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron runner and waits for in-flight firings to submit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return errors.New("scheduler not running")
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	return nil
}

// Add registers a schedule. A missing ID is assigned.
func (s *Scheduler) Add(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if _, exists := s.schedules[schedule.ID]; exists {
		return errors.Errorf("schedule %s already exists", schedule.ID)
	}

	cronSchedule, err := cron.ParseStandard(schedule.CronExpr)
	if err != nil {
		return errors.Wrap(err, "invalid cron expression")
	}

	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.NextRun = cronSchedule.Next(now)

	if schedule.Enabled {
		if err := s.register(schedule); err != nil {
			return err
		}
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// Remove deletes a schedule and its cron entry.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return errors.Errorf("schedule %s not found", id)
	}
	s.unregister(id)
	delete(s.schedules, id)
	return nil
}

// Update replaces a schedule's definition, preserving its run history.
func (s *Scheduler) Update(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.schedules[schedule.ID]
	if !exists {
		return errors.Errorf("schedule %s not found", schedule.ID)
	}
	if _, err := cron.ParseStandard(schedule.CronExpr); err != nil {
		return errors.Wrap(err, "invalid cron expression")
	}

	schedule.CreatedAt = old.CreatedAt
	schedule.RunCount = old.RunCount
	schedule.FailCount = old.FailCount
	schedule.LastRun = old.LastRun
	schedule.LastOpID = old.LastOpID
	schedule.UpdatedAt = time.Now()

	s.unregister(schedule.ID)
	if schedule.Enabled {
		if err := s.register(schedule); err != nil {
			return err
		}
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// Get returns a copy of one schedule.
func (s *Scheduler) Get(id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, exists := s.schedules[id]
	if !exists {
		return nil, errors.Errorf("schedule %s not found", id)
	}
	cp := *schedule
	return &cp, nil
}

// List returns copies of all schedules.
func (s *Scheduler) List() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		cp := *schedule
		out = append(out, &cp)
	}
	return out
}

// Enable turns a disabled schedule back on.
func (s *Scheduler) Enable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, exists := s.schedules[id]
	if !exists {
		return errors.Errorf("schedule %s not found", id)
	}
	if schedule.Enabled {
		return nil
	}
	if err := s.register(schedule); err != nil {
		return err
	}
	schedule.Enabled = true
	schedule.UpdatedAt = time.Now()
	return nil
}

// Disable stops future firings without deleting the schedule.
func (s *Scheduler) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, exists := s.schedules[id]
	if !exists {
		return errors.Errorf("schedule %s not found", id)
	}
	if !schedule.Enabled {
		return nil
	}
	s.unregister(id)
	schedule.Enabled = false
	schedule.UpdatedAt = time.Now()
	return nil
}

// RunNow fires a schedule immediately, outside its cron window.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	_, exists := s.schedules[id]
	s.mu.RUnlock()
	if !exists {
		return errors.Errorf("schedule %s not found", id)
	}
	go s.fire(id)
	return nil
}

func (s *Scheduler) register(schedule *Schedule) error {
	id := schedule.ID
	entryID, err := s.cron.AddFunc(schedule.CronExpr, func() {
		s.fire(id)
	})
	if err != nil {
		return errors.Wrap(err, "failed to add cron entry")
	}
	s.entries[id] = entryID
	return nil
}

func (s *Scheduler) unregister(id string) {
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	schedule, exists := s.schedules[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	schedule.LastRun = time.Now()
	schedule.RunCount++
	req := schedule.Request
	s.mu.Unlock()

	op, err := s.submitter.Submit(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		schedule.FailCount++
		s.log.WithFields(logrus.Fields{
			"schedule_id": id,
			"error":       err.Error(),
		}).Error("scheduled transfer rejected")
	} else {
		schedule.LastOpID = op.ID
		s.log.WithFields(logrus.Fields{
			"schedule_id":  id,
			"operation_id": op.ID,
		}).Info("scheduled transfer submitted")
	}
	if cronSchedule, parseErr := cron.ParseStandard(schedule.CronExpr); parseErr == nil {
		schedule.NextRun = cronSchedule.Next(time.Now())
	}
}

// Stats summarizes the scheduler's registered work.
type Stats struct {
	TotalSchedules    int       `json:"total_schedules"`
	ActiveSchedules   int       `json:"active_schedules"`
	DisabledSchedules int       `json:"disabled_schedules"`
	NextRun           time.Time `json:"next_run"`
}

func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSchedules: len(s.schedules)}
	var nextRun time.Time
	for _, schedule := range s.schedules {
		if schedule.Enabled {
			stats.ActiveSchedules++
			if nextRun.IsZero() || schedule.NextRun.Before(nextRun) {
				nextRun = schedule.NextRun
			}
		} else {
			stats.DisabledSchedules++
		}
	}
	stats.NextRun = nextRun
	return stats
}
