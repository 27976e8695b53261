package models

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a market data provider failure or a malformed payload.
	ErrFetch = errors.New("fetch failed")
	// ErrSchema marks an expected column that is absent.
	ErrSchema = errors.New("schema mismatch")
	// ErrComputation marks a missing prerequisite derived column.
	ErrComputation = errors.New("computation failed")
	// ErrCacheDecision is only used internally by the cache gate; it never
	// leaves it.
	ErrCacheDecision = errors.New("cache not usable")
	// ErrConfigMode marks an unrecognized summary mode or frequency key.
	ErrConfigMode = errors.New("invalid summary mode")
	// ErrNoData is returned when a step needs at least one instrument or date.
	ErrNoData = errors.New("no data")
)

// Pipeline stages used in StageError and structured logs.
const (
	StageCache   = "cache"
	StageFetch   = "fetch"
	StageLags    = "lagged_returns"
	StageLow     = "rolling_low"
	StageProject = "price_targets"
	StagePersist = "persist"
	StageSummary = "summary"
	StageTask    = "task"
)

// StageError ties a failure to the instrument and pipeline stage it came from.
type StageError struct {
	Symbol string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Symbol, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err unless it is nil.
func NewStageError(symbol, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Symbol: symbol, Stage: stage, Err: err}
}
