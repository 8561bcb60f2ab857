package job

import "time"

// OutcomeKind classifies the result of one invocation.
type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeNotFound OutcomeKind = "not_found"
	OutcomeFailure  OutcomeKind = "failure"
)

type Outcome struct {
	Kind     OutcomeKind
	Status   int
	Err      error
	Duration time.Duration
}

func Success(status int) Outcome  { return Outcome{Kind: OutcomeSuccess, Status: status} }
func NotFound(status int) Outcome { return Outcome{Kind: OutcomeNotFound, Status: status} }
func Failure(status int, err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Status: status, Err: err}
}
