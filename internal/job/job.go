// Package job defines the paper-to-video job lifecycle: the record model,
// the transition rules that guard it, and the reporter and query services
// built on top of a pluggable store.
package job

import "time"

// Status is the lifecycle state of a video generation job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a job in this status is frozen. A terminal job
// accepts no further mutation except an exact retry of the event that
// terminated it.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrorDetail records why a job failed.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job tracks one paper-to-video request from submission to completion.
//
// Progress is a percentage in [0,100] that never decreases while the job is
// RUNNING; it is forced to 100 on success and keeps its last reported value
// on failure. ResultURL is set only on SUCCEEDED jobs, Error only on FAILED
// ones.
type Job struct {
	ID        string
	PaperRef  string
	Status    Status
	Progress  int
	ResultURL string
	Error     *ErrorDetail
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns an independent copy of j.
func (j *Job) Clone() *Job {
	out := *j
	if j.Error != nil {
		detail := *j.Error
		out.Error = &detail
	}
	return &out
}
