package job

import (
	"fmt"
	"time"
)

// Event is a requested change to a job's lifecycle. The concrete types
// below are the only implementations.
type Event interface {
	name() string
}

// ProgressEvent reports how far processing has advanced. The first progress
// report against a PENDING job doubles as the claim that moves it to
// RUNNING.
type ProgressEvent struct {
	Percent int
}

// SuccessEvent completes the job with the URL of the produced video.
type SuccessEvent struct {
	ResultURL string
}

// FailureEvent fails the job with a classified reason.
type FailureEvent struct {
	Kind    string
	Message string
}

func (ProgressEvent) name() string { return "progress" }
func (SuccessEvent) name() string  { return "success" }
func (FailureEvent) name() string  { return "failure" }

// Transition evaluates ev against the snapshot cur and returns the next
// snapshot. The bool is false when ev is an exact retry of the event that
// already terminated the job; such retries are tolerated and change
// nothing. Every other violation returns ErrInvalidTransition and leaves
// cur untouched. Transition never mutates cur.
func Transition(cur *Job, ev Event, now time.Time) (*Job, bool, error) {
	switch e := ev.(type) {
	case ProgressEvent:
		return applyProgress(cur, e, now)
	case SuccessEvent:
		return applySuccess(cur, e, now)
	case FailureEvent:
		return applyFailure(cur, e, now)
	default:
		return nil, false, fmt.Errorf("unknown event type %q: %w", ev.name(), ErrInvalidTransition)
	}
}

func applyProgress(cur *Job, e ProgressEvent, now time.Time) (*Job, bool, error) {
	if e.Percent < 0 || e.Percent > 100 {
		return nil, false, fmt.Errorf("progress %d outside [0,100]: %w", e.Percent, ErrInvalidTransition)
	}

	switch cur.Status {
	case StatusPending:
		next := cur.Clone()
		next.Status = StatusRunning
		next.Progress = e.Percent
		next.UpdatedAt = now
		return next, true, nil
	case StatusRunning:
		if e.Percent < cur.Progress {
			return nil, false, fmt.Errorf("progress cannot decrease from %d to %d: %w", cur.Progress, e.Percent, ErrInvalidTransition)
		}
		next := cur.Clone()
		next.Progress = e.Percent
		next.UpdatedAt = now
		return next, true, nil
	default:
		return nil, false, fmt.Errorf("cannot report progress on %s job: %w", cur.Status, ErrInvalidTransition)
	}
}

func applySuccess(cur *Job, e SuccessEvent, now time.Time) (*Job, bool, error) {
	if e.ResultURL == "" {
		return nil, false, fmt.Errorf("success requires a result url: %w", ErrInvalidTransition)
	}

	switch cur.Status {
	case StatusPending, StatusRunning:
		next := cur.Clone()
		next.Status = StatusSucceeded
		next.Progress = 100
		next.ResultURL = e.ResultURL
		next.Error = nil
		next.UpdatedAt = now
		return next, true, nil
	case StatusSucceeded:
		if cur.ResultURL == e.ResultURL {
			return cur.Clone(), false, nil
		}
		return nil, false, fmt.Errorf("job already succeeded with a different result: %w", ErrInvalidTransition)
	default:
		return nil, false, fmt.Errorf("cannot succeed a %s job: %w", cur.Status, ErrInvalidTransition)
	}
}

func applyFailure(cur *Job, e FailureEvent, now time.Time) (*Job, bool, error) {
	if e.Kind == "" {
		return nil, false, fmt.Errorf("failure requires a kind: %w", ErrInvalidTransition)
	}

	switch cur.Status {
	case StatusPending, StatusRunning:
		// Progress keeps its last reported value.
		next := cur.Clone()
		next.Status = StatusFailed
		next.ResultURL = ""
		next.Error = &ErrorDetail{Kind: e.Kind, Message: e.Message}
		next.UpdatedAt = now
		return next, true, nil
	case StatusFailed:
		if cur.Error != nil && cur.Error.Kind == e.Kind && cur.Error.Message == e.Message {
			return cur.Clone(), false, nil
		}
		return nil, false, fmt.Errorf("job already failed with a different reason: %w", ErrInvalidTransition)
	default:
		return nil, false, fmt.Errorf("cannot fail a %s job: %w", cur.Status, ErrInvalidTransition)
	}
}
