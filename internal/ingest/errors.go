package ingest

import "fmt"

// Step names the pipeline stage that produced an error.
type Step string

const (
	StepWrite         Step = "write"
	StepCacheUpdate   Step = "cache_update"
	StepInvalidate    Step = "invalidate"
	StepParseDispatch Step = "parse_dispatch"
)

// StepError reports which ingestion step failed and whether the match
// write had already committed. A committed StepError means the source of
// truth is durable and only a best-effort follow-up was lost; callers
// can treat cache staleness as correctable rather than re-ingesting.
type StepError struct {
	Step      Step
	Committed bool
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step Step, committed bool, err error) *StepError {
	return &StepError{Step: step, Committed: committed, Err: err}
}
