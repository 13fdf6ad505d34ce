package trendview

import "fmt"

// Stage is the progress of a report run. Runs move through the stages in
// order and never go back.
type Stage int

const (
	Idle Stage = iota
	DataLoaded
	Smoothed
	Compared
	Rendered
	Written
)

var stageNames = [...]string{
	Idle:       "idle",
	DataLoaded: "data_loaded",
	Smoothed:   "smoothed",
	Compared:   "compared",
	Rendered:   "rendered",
	Written:    "written",
}

func (s Stage) String() string {
	if s < Idle || s > Written {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError aborts a run. Stage is the stage that could not be reached.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("report failed before %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
