package migrate

import (
	"context"
	"fmt"
)

// BaselineVersion is the version of a freshly initialized datastore.
const BaselineVersion = 1

// Step is a single forward-only schema or data transformation.
//
// Apply runs against a datastore at exactly TargetVersion-1, inside a
// transaction. Steps must be idempotent: a crash between a step's commit and
// the version commit means the step is attempted again on the next start.
type Step struct {
	TargetVersion int
	Description   string
	Apply         func(ctx context.Context, tx Execer) error
}

// Registry is an ordered, validated, immutable list of steps.
type Registry struct {
	steps []Step
}

// NewRegistry validates steps and returns a registry.
// Steps must be supplied in strictly increasing TargetVersion order starting above the baseline.
func NewRegistry(steps ...Step) (*Registry, error) {
	prev := BaselineVersion
	for i, step := range steps {
		if step.Apply == nil {
			return nil, fmt.Errorf("%w: step %d (v%d) has no apply function", ErrInvalidRegistry, i, step.TargetVersion)
		}
		if step.TargetVersion <= BaselineVersion {
			return nil, fmt.Errorf("%w: step %d targets v%d, must be above baseline v%d", ErrInvalidRegistry, i, step.TargetVersion, BaselineVersion)
		}
		if step.TargetVersion <= prev {
			return nil, fmt.Errorf("%w: step %d targets v%d after v%d", ErrInvalidRegistry, i, step.TargetVersion, prev)
		}
		prev = step.TargetVersion
	}

	owned := make([]Step, len(steps))
	copy(owned, steps)
	return &Registry{steps: owned}, nil
}

// MustRegistry is NewRegistry for package-level registries; it panics on a malformed list.
func MustRegistry(steps ...Step) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Target returns the highest version the registry migrates to.
func (r *Registry) Target() int {
	if len(r.steps) == 0 {
		return BaselineVersion
	}
	return r.steps[len(r.steps)-1].TargetVersion
}

// Pending returns the steps with TargetVersion above current, in ascending order.
func (r *Registry) Pending(current int) []Step {
	var pending []Step
	for _, step := range r.steps {
		if step.TargetVersion > current {
			pending = append(pending, step)
		}
	}
	return pending
}

// Steps returns a copy of every registered step.
func (r *Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}
