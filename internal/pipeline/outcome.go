package pipeline

import (
	"fmt"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

// OutcomeStatus is the terminal state of one change event.
type OutcomeStatus string

const (
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSucceeded OutcomeStatus = "succeeded"
)

// Stage names the step at which a file failed.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDecode    Stage = "decode"
	StageValidate  Stage = "validate"
	StageReconcile Stage = "reconcile"
)

// Outcome records what happened to one change event.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Stage  Stage         `json:"stage,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Object string        `json:"object"`
	Kind   members.Kind  `json:"kind,omitempty"`
	Err    error         `json:"-"`
}

func skipped(object, reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason, Object: object}
}

func failed(object string, kind members.Kind, stage Stage, err error) Outcome {
	return Outcome{Status: OutcomeFailed, Stage: stage, Reason: err.Error(), Object: object, Kind: kind, Err: err}
}

func succeeded(object string, kind members.Kind) Outcome {
	return Outcome{Status: OutcomeSucceeded, Object: object, Kind: kind}
}

// FileFailure names a file that could not be registered and why.
type FileFailure struct {
	Key   string
	Kind  members.Kind
	Stage Stage
	Err   error
}

func (f FileFailure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Key, f.Stage, f.Err)
}
