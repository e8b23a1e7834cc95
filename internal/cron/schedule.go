// Package cron runs dormship's housekeeping jobs from a single elected
// worker.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Job is one unit of housekeeping.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to the period it should run at.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Schedule tracks when each job last ran. A job that has never run is due
// immediately.
type Schedule struct {
	mu      sync.Mutex
	entries []Entry
	lastRun map[string]time.Time
}

func NewSchedule(entries ...Entry) (*Schedule, error) {
	s := &Schedule{lastRun: map[string]time.Time{}}
	seen := map[string]bool{}
	for _, e := range entries {
		switch {
		case e.Job == nil:
			return nil, errors.New("cron: nil job in schedule")
		case e.Every <= 0:
			return nil, fmt.Errorf("cron: %s needs a positive period", e.Job.Name())
		case seen[e.Job.Name()]:
			return nil, fmt.Errorf("cron: job %s scheduled twice", e.Job.Name())
		}
		seen[e.Job.Name()] = true
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Due lists the jobs whose period has elapsed at now, in schedule order.
func (s *Schedule) Due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, e := range s.entries {
		last, ok := s.lastRun[e.Job.Name()]
		if !ok || !now.Before(last.Add(e.Every)) {
			due = append(due, e.Job)
		}
	}
	return due
}

func (s *Schedule) MarkRun(name string, at time.Time) {
	s.mu.Lock()
	s.lastRun[name] = at
	s.mu.Unlock()
}

// Tick is the shortest period in the schedule, capped at ceiling.
func (s *Schedule) Tick(ceiling time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	periods := make([]time.Duration, 0, len(s.entries)+1)
	for _, e := range s.entries {
		periods = append(periods, e.Every)
	}
	if ceiling > 0 {
		periods = append(periods, ceiling)
	}
	if len(periods) == 0 {
		return time.Hour
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	return periods[0]
}

// Names returns the scheduled job names.
func (s *Schedule) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Job.Name()
	}
	return names
}
