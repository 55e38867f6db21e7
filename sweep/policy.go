package sweep

import (
	"encoding/json"
	"fmt"

	"github.com/weiihann/allocbench/workload"
)

// Policy decides what the controller does when a stage fails.
type Policy string

const (
	// PolicyAbort stops the sweep at the failing stage.
	PolicyAbort Policy = "abort"
	// PolicySkip records the failure and moves on: to the next
	// configuration after a compile failure, to the next trial otherwise.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case PolicyAbort, PolicySkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want abort or skip)", name)
	}
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageCompile Stage = "compile"
	StageExecute Stage = "execute"
	StageParse   Stage = "parse"
)

// Failure records a failed stage for one configuration. Trial is zero
// for compile failures.
type Failure struct {
	Config   workload.Config
	Trial    int
	Stage    Stage
	ExitCode int
	Err      error
}

func (f *Failure) Error() string {
	if f.Stage == StageCompile {
		return fmt.Sprintf("%s %s: %v", f.Stage, f.Config, f.Err)
	}

	return fmt.Sprintf("%s %s trial %d: %v", f.Stage, f.Config, f.Trial, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Config   workload.Config `json:"config"`
		Trial    int             `json:"trial,omitempty"`
		Stage    Stage           `json:"stage"`
		ExitCode int             `json:"exit_code,omitempty"`
		Error    string          `json:"error"`
	}{f.Config, f.Trial, f.Stage, f.ExitCode, f.Err.Error()})
}
