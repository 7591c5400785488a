package warmup

import (
	"errors"
	"fmt"
)

var (
	// ErrWarmup matches every fatal warm-up failure.
	ErrWarmup = errors.New("warm-up failed")
	// ErrAlreadyRan is returned by a second Run on the same controller.
	ErrAlreadyRan = errors.New("warm-up already ran")
)

// Stage names the warm-up step that failed.
type Stage string

const (
	StageObserve  Stage = "observe"
	StageNavigate Stage = "navigate"
	StageToken    Stage = "token"
	StageMerge    Stage = "merge"
)

// Error is a fatal warm-up failure. Content holds the page HTML at the time
// of failure when it could be captured.
type Error struct {
	Stage      Stage
	Attempts   int
	Diagnostic Diagnostic
	Content    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("warm-up failed at %s", e.Stage)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Diagnostic.Challenge != "" {
		msg += fmt.Sprintf(" (challenge: %s)", e.Diagnostic.Challenge)
	} else if e.Diagnostic.Title != "" {
		msg += fmt.Sprintf(" (page: %q)", e.Diagnostic.Title)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWarmup}
	}
	return []error{ErrWarmup, e.Err}
}
