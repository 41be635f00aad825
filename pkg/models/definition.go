package models

import (
	"fmt"
	"math"
	"time"
)

// StepKind tags the variant of a workflow step.
type StepKind string

const (
	StepKindInvoke   StepKind = "invoke"
	StepKindWait     StepKind = "wait"
	StepKindTerminal StepKind = "terminal"
)

// RetryPolicy bounds retries of transport-level executor failures. Business
// failures are never retried.
type RetryPolicy struct {
	MaxAttempts     int     `json:"max_attempts"     validate:"required,min=1"`
	IntervalSeconds int     `json:"interval_seconds" validate:"min=0"`
	BackoffRate     float64 `json:"backoff_rate"     validate:"min=0"`
}

// Delay returns how long to wait before the next attempt. The attempt index
// starts at 0, incrementing after each failure.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	rate := p.BackoffRate
	if rate <= 0 {
		rate = 1
	}

	seconds := float64(p.IntervalSeconds) * math.Pow(rate, float64(attempt))

	return time.Duration(seconds * float64(time.Second))
}

// MaxDelay returns the worst-case total time the policy can spend on one step,
// excluding the executor calls themselves.
func (p RetryPolicy) MaxDelay() time.Duration {
	var total time.Duration
	for attempt := 0; attempt < p.MaxAttempts-1; attempt++ {
		total += p.Delay(attempt)
	}

	return total
}

// Step is one node of a workflow definition. Exactly one variant applies,
// selected by Kind:
//   - invoke: call an executor, record a status, branch on outcome
//   - wait: suspend for a fixed duration, then continue
//   - terminal: record a terminal work item status and stop
//
// Edge values (OnSuccess, OnFailure, Next) name either another step or a
// terminal work item status.
type Step struct {
	Name string   `json:"name" validate:"required"`
	Kind StepKind `json:"kind" validate:"required,oneof=invoke wait terminal"`

	Executor  string         `json:"executor,omitempty"`
	Retry     RetryPolicy    `json:"retry,omitzero"`
	Record    WorkItemStatus `json:"record,omitempty"`
	OnSuccess string         `json:"on_success,omitempty"`
	OnFailure string         `json:"on_failure,omitempty"`

	WaitSeconds int    `json:"wait_seconds,omitempty"`
	Next        string `json:"next,omitempty"`

	Status WorkItemStatus `json:"status,omitempty"`
}

// WorkflowDefinition is a static, named graph of steps consumed by the
// orchestrator at execution-start time.
type WorkflowDefinition struct {
	Name  string     `json:"name"  validate:"required"`
	Kind  ActionKind `json:"kind"  validate:"required,oneof=cancel dispute"`
	Entry string     `json:"entry" validate:"required"`
	Steps []Step     `json:"steps" validate:"required,min=1"`
}

// StepByName returns the named step.
func (d *WorkflowDefinition) StepByName(name string) (Step, bool) {
	for _, step := range d.Steps {
		if step.Name == name {
			return step, true
		}
	}

	return Step{}, false
}

// EstimatedDuration sums the worst-case retry budget of every invoke step and
// the duration of every wait step. It is a UX hint, not a guarantee.
func (d *WorkflowDefinition) EstimatedDuration() time.Duration {
	var total time.Duration

	for _, step := range d.Steps {
		switch step.Kind {
		case StepKindInvoke:
			total += step.Retry.MaxDelay()
		case StepKindWait:
			total += time.Duration(step.WaitSeconds) * time.Second
		case StepKindTerminal:
		}
	}

	return total
}

// Validate checks the structural invariants of the definition: step names are
// unique, the entry step exists, every edge resolves to a step or a terminal
// status, and the graph is acyclic so every path reaches a terminal state.
func (d *WorkflowDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.Name)
	}

	byName := make(map[string]Step, len(d.Steps))

	for _, step := range d.Steps {
		if _, dup := byName[step.Name]; dup {
			return fmt.Errorf("workflow %s: duplicate step %q", d.Name, step.Name)
		}

		byName[step.Name] = step
	}

	if _, ok := byName[d.Entry]; !ok {
		return fmt.Errorf("workflow %s: entry step %q not defined", d.Name, d.Entry)
	}

	for _, step := range d.Steps {
		if err := d.validateStep(step, byName); err != nil {
			return err
		}
	}

	return d.checkAcyclic(byName)
}

func (d *WorkflowDefinition) validateStep(step Step, byName map[string]Step) error {
	switch step.Kind {
	case StepKindInvoke:
		if step.Executor == "" {
			return fmt.Errorf("workflow %s: invoke step %q has no executor", d.Name, step.Name)
		}

		if step.Retry.MaxAttempts < 1 {
			return fmt.Errorf("workflow %s: invoke step %q needs max_attempts >= 1", d.Name, step.Name)
		}

		for _, edge := range []string{step.OnSuccess, step.OnFailure} {
			if err := d.validateEdge(step.Name, edge, byName); err != nil {
				return err
			}
		}
	case StepKindWait:
		if step.WaitSeconds <= 0 {
			return fmt.Errorf("workflow %s: wait step %q needs wait_seconds > 0", d.Name, step.Name)
		}

		if err := d.validateEdge(step.Name, step.Next, byName); err != nil {
			return err
		}
	case StepKindTerminal:
		if !step.Status.Terminal() {
			return fmt.Errorf("workflow %s: terminal step %q has non-terminal status %q", d.Name, step.Name, step.Status)
		}
	default:
		return fmt.Errorf("workflow %s: step %q has unknown kind %q", d.Name, step.Name, step.Kind)
	}

	return nil
}

func (d *WorkflowDefinition) validateEdge(from, edge string, byName map[string]Step) error {
	if edge == "" {
		return fmt.Errorf("workflow %s: step %q has an empty edge", d.Name, from)
	}

	if _, ok := byName[edge]; ok {
		return nil
	}

	if WorkItemStatus(edge).Terminal() {
		return nil
	}

	return fmt.Errorf("workflow %s: step %q edge %q is neither a step nor a terminal status", d.Name, from, edge)
}

func (d *WorkflowDefinition) checkAcyclic(byName map[string]Step) error {
	const (
		visiting = 1
		done     = 2
	)

	state := make(map[string]int, len(byName))

	var visit func(name string) error

	visit = func(name string) error {
		step, ok := byName[name]
		if !ok {
			// Terminal status edge, nothing to follow.
			return nil
		}

		switch state[name] {
		case visiting:
			return fmt.Errorf("workflow %s: cycle through step %q", d.Name, name)
		case done:
			return nil
		}

		state[name] = visiting

		for _, edge := range stepEdges(step) {
			if err := visit(edge); err != nil {
				return err
			}
		}

		state[name] = done

		return nil
	}

	return visit(d.Entry)
}

func stepEdges(step Step) []string {
	switch step.Kind {
	case StepKindInvoke:
		return []string{step.OnSuccess, step.OnFailure}
	case StepKindWait:
		return []string{step.Next}
	default:
		return nil
	}
}
