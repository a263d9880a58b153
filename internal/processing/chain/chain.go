package chain

import (
	"context"
	"fmt"
	"time"

	"part-identifier/internal/debug/timing"
	"part-identifier/internal/logger"
	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"
)

// ProcessingStep is one deterministic transform in the chain.
type ProcessingStep interface {
	Name() string
	// Produces is the state the chain is in after this step succeeds.
	Produces() processing.State
	// Validate checks the step configuration without touching any buffer.
	Validate() error
	// Apply returns a new buffer and never modifies input.
	Apply(input *safe.Mat) (*safe.Mat, error)
}

// Observer sees each intermediate buffer right after it is produced. The
// buffer is owned by the chain and must not be retained or closed.
type Observer func(state processing.State, mat *safe.Mat)

type Option func(*ProcessingChain)

func WithLogger(l logger.Logger) Option {
	return func(pc *ProcessingChain) { pc.logger = l }
}

func WithTracker(t *timing.Tracker) Option {
	return func(pc *ProcessingChain) { pc.tracker = t }
}

func WithObserver(o Observer) Option {
	return func(pc *ProcessingChain) { pc.observer = o }
}

// ProcessingChain runs its steps strictly in order. Steps must advance the
// state machine one state at a time starting from StateLoaded.
type ProcessingChain struct {
	steps    []ProcessingStep
	logger   logger.Logger
	tracker  *timing.Tracker
	observer Observer
}

func NewProcessingChain(steps []ProcessingStep, opts ...Option) (*ProcessingChain, error) {
	if len(steps) == 0 {
		return nil, processing.InvalidConfiguration("processing chain has no steps")
	}

	state := processing.StateLoaded
	for _, step := range steps {
		if !state.CanTransition(step.Produces()) {
			return nil, processing.InvalidConfiguration("step %s cannot move from %s to %s",
				step.Name(), state, step.Produces())
		}
		state = step.Produces()
	}

	pc := &ProcessingChain{
		steps:  append([]ProcessingStep(nil), steps...),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc, nil
}

// FinalState is the state reached when every step succeeds. A chain ending
// in StateDenoised hands off in StateReady.
func (pc *ProcessingChain) FinalState() processing.State {
	last := pc.steps[len(pc.steps)-1].Produces()
	if last == processing.StateDenoised {
		return processing.StateReady
	}
	return last
}

// Validate checks every step before any transform runs.
func (pc *ProcessingChain) Validate() error {
	for _, step := range pc.steps {
		if err := step.Validate(); err != nil {
			return &processing.StageError{Stage: step.Produces(), Step: step.Name(), Err: err}
		}
	}
	return nil
}

// Execute runs all steps on input and returns the final buffer, which the
// caller owns. input is never modified or closed. On failure every
// intermediate buffer is released and a *processing.StageError is returned.
// ctx is only consulted between steps.
func (pc *ProcessingChain) Execute(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	return pc.ExecuteObserved(ctx, input, pc.observer)
}

// ExecuteObserved is Execute with a per-call observer in place of the one
// given at construction. A nil observer disables observation.
func (pc *ProcessingChain) ExecuteObserved(ctx context.Context, input *safe.Mat, observer Observer) (*safe.Mat, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	if err := safe.ValidateMatForOperation(input, "preprocessing"); err != nil {
		first := pc.steps[0]
		return nil, &processing.StageError{Stage: first.Produces(), Step: first.Name(), Err: processing.InvalidImage(err)}
	}

	width, height := input.Width(), input.Height()
	current := input
	release := func() {
		if current != input {
			current.Close()
		}
	}

	for _, step := range pc.steps {
		if err := ctx.Err(); err != nil {
			release()
			return nil, fmt.Errorf("preprocessing cancelled before %s: %w", step.Produces(), err)
		}

		span := pc.startTiming(step.Name())
		result, err := step.Apply(current)
		elapsed := pc.endTiming(span)
		if err != nil {
			release()
			pc.logger.Error("ProcessingChain", err, map[string]interface{}{
				"step":  step.Name(),
				"stage": step.Produces().String(),
			})
			return nil, &processing.StageError{Stage: step.Produces(), Step: step.Name(), Err: err}
		}

		if result.Width() != width || result.Height() != height {
			result.Close()
			release()
			return nil, &processing.StageError{
				Stage: step.Produces(),
				Step:  step.Name(),
				Err: fmt.Errorf("step changed shape from %dx%d to %dx%d",
					width, height, result.Width(), result.Height()),
			}
		}

		pc.logger.Debug("ProcessingChain", "stage completed", map[string]interface{}{
			"step":     step.Name(),
			"stage":    step.Produces().String(),
			"duration": elapsed.String(),
		})

		if observer != nil {
			observer(step.Produces(), result)
		}

		release()
		current = result
	}

	return current, nil
}

func (pc *ProcessingChain) startTiming(operation string) timing.Span {
	if pc.tracker == nil {
		return timing.Span{}
	}
	return pc.tracker.StartTiming(operation)
}

func (pc *ProcessingChain) endTiming(span timing.Span) time.Duration {
	if pc.tracker == nil {
		return 0
	}
	return pc.tracker.EndTiming(span)
}

func (pc *ProcessingChain) StepCount() int {
	return len(pc.steps)
}

func (pc *ProcessingChain) GetStepNames() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}
