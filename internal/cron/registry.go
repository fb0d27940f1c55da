package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cadence.
type Entry struct {
	Job      Job
	Interval time.Duration
}

// Registry tracks registered cron jobs and their intervals.
type Registry struct {
	entries []Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job running at the given interval.
func (r *Registry) Register(job Job, interval time.Duration) {
	if job == nil || interval <= 0 {
		return
	}
	r.entries = append(r.entries, Entry{Job: job, Interval: interval})
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
