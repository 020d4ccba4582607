// Package jobs owns the single active trim job and its event stream.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"video-scissors/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when finishing while no job is active.
var ErrNoRunningJob = errors.New("no running job")

// Supervisor owns the one allowed active job. The slot is claimed by Start
// and released by Finish; no other writer exists.
type Supervisor struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewSupervisor creates a supervisor in idle state.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start claims the active slot for the given created job and moves it to
// running. Fails when another job currently occupies the slot.
func (s *Supervisor) Start(job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Status == domain.JobStatusRunning {
		return ErrJobAlreadyRunning
	}

	job.Status = domain.JobStatusRunning
	s.current = job
	return nil
}

// Finish releases the slot with a terminal status. A second Finish for the
// same job is rejected, which keeps the terminal outcome exactly-once.
func (s *Supervisor) Finish(jobID string, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.ID != jobID || s.current.Status != domain.JobStatusRunning {
		return ErrNoRunningJob
	}
	if !status.IsTerminal() {
		return fmt.Errorf("finish requires a terminal status, got %s", status)
	}

	s.current.Status = status
	return nil
}

// Current returns a snapshot of the current job.
func (s *Supervisor) Current() domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsRunning reports current slot occupancy.
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Status == domain.JobStatusRunning
}

// Reset clears job metadata and returns the supervisor to idle.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = domain.Job{Status: domain.JobStatusIdle}
}
