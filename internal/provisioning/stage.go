package provisioning

import (
	"fmt"
	"time"
)

// Stage is an idempotent unit of workflow work.
type Stage interface {
	// Name returns the human-readable name of this stage.
	Name() string

	// Satisfied reports whether the stage's outcome already exists. It must
	// not change anything, so calling it twice gives the same answer.
	Satisfied(ctx *Context) (bool, error)

	// Execute performs the side-effecting work.
	Execute(ctx *Context) error

	// Await blocks until the work took effect or its timeout passes.
	Await(ctx *Context) error
}

// Step builds a Stage from functions. Nil functions are no-ops; a nil
// Check means the stage always runs.
type Step struct {
	StageName string
	Check     func(ctx *Context) (bool, error)
	Do        func(ctx *Context) error
	Wait      func(ctx *Context) error
}

var _ Stage = Step{}

func (s Step) Name() string { return s.StageName }

func (s Step) Satisfied(ctx *Context) (bool, error) {
	if s.Check == nil {
		return false, nil
	}
	return s.Check(ctx)
}

func (s Step) Execute(ctx *Context) error {
	if s.Do == nil {
		return nil
	}
	return s.Do(ctx)
}

func (s Step) Await(ctx *Context) error {
	if s.Wait == nil {
		return nil
	}
	return s.Wait(ctx)
}

// RunStages executes stages strictly in order. A stage whose precondition
// holds is skipped entirely. The first failure aborts the remaining stages
// and is returned wrapped with the stage name.
func RunStages(ctx *Context, stages []Stage) error {
	start := time.Now()
	ctx.Log.Info("running stages", "count", len(stages))

	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}

		name := stage.Name()
		stageStart := time.Now()
		log := ctx.Log.WithValues("stage", name, "step", fmt.Sprintf("%d/%d", i+1, len(stages)))

		done, err := stage.Satisfied(ctx)
		if err != nil {
			recordStage(ctx.Workflow, name, resultFailed, time.Since(stageStart))
			LogStageFailed(ctx.Observer, name, err)
			return fmt.Errorf("%s: precondition: %w", name, err)
		}
		if done {
			recordStage(ctx.Workflow, name, resultSkipped, time.Since(stageStart))
			LogStageSkipped(ctx.Observer, name)
			log.V(1).Info("stage already satisfied")
			continue
		}

		LogStageStart(ctx.Observer, name)
		if err := stage.Execute(ctx); err != nil {
			recordStage(ctx.Workflow, name, resultFailed, time.Since(stageStart))
			LogStageFailed(ctx.Observer, name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := stage.Await(ctx); err != nil {
			recordStage(ctx.Workflow, name, resultFailed, time.Since(stageStart))
			LogStageFailed(ctx.Observer, name, err)
			return fmt.Errorf("%s: %w", name, err)
		}

		d := time.Since(stageStart)
		recordStage(ctx.Workflow, name, resultExecuted, d)
		LogStageComplete(ctx.Observer, name, d)
	}

	ctx.Log.Info("stages completed", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
