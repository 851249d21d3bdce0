package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Execer) error { return nil }

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{name: "empty", steps: nil},
		{name: "ordered", steps: []Step{{TargetVersion: 2, Apply: noop}, {TargetVersion: 3, Apply: noop}, {TargetVersion: 5, Apply: noop}}},
		{name: "baseline target", steps: []Step{{TargetVersion: 1, Apply: noop}}, wantErr: true},
		{name: "negative target", steps: []Step{{TargetVersion: -2, Apply: noop}}, wantErr: true},
		{name: "duplicate", steps: []Step{{TargetVersion: 2, Apply: noop}, {TargetVersion: 2, Apply: noop}}, wantErr: true},
		{name: "out of order", steps: []Step{{TargetVersion: 3, Apply: noop}, {TargetVersion: 2, Apply: noop}}, wantErr: true},
		{name: "missing apply", steps: []Step{{TargetVersion: 2}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.steps...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRegistry)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Len(t, r.Steps(), len(tt.steps))
		})
	}
}

func TestMustRegistryPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustRegistry(Step{TargetVersion: 3, Apply: noop}, Step{TargetVersion: 3, Apply: noop})
	})
}

func TestRegistryTargetAndPending(t *testing.T) {
	empty := MustRegistry()
	assert.Equal(t, BaselineVersion, empty.Target())
	assert.Empty(t, empty.Pending(BaselineVersion))

	r := MustRegistry(
		Step{TargetVersion: 2, Apply: noop},
		Step{TargetVersion: 3, Apply: noop},
		Step{TargetVersion: 4, Apply: noop},
	)
	assert.Equal(t, 4, r.Target())

	versions := func(steps []Step) []int {
		var out []int
		for _, s := range steps {
			out = append(out, s.TargetVersion)
		}
		return out
	}
	assert.Equal(t, []int{2, 3, 4}, versions(r.Pending(1)))
	assert.Equal(t, []int{4}, versions(r.Pending(3)))
	assert.Empty(t, r.Pending(4))
	assert.Empty(t, r.Pending(9))
}

func TestRegistryIsImmutable(t *testing.T) {
	steps := []Step{{TargetVersion: 2, Description: "original", Apply: noop}}
	r := MustRegistry(steps...)

	steps[0].Description = "changed by caller"
	copied := r.Steps()
	copied[0].Description = "changed via Steps"

	assert.Equal(t, "original", r.Steps()[0].Description)
}

func TestMigrationError(t *testing.T) {
	cause := errors.New("no such table: timesheet")
	err := fmt.Errorf("run: %w", newError(ErrStepApplication, 2, "apply", cause))

	assert.ErrorIs(t, err, ErrStepApplication)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRestore)

	var merr *MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 2, merr.Version)
	assert.Equal(t, "migration v2: apply: migration step failed: no such table: timesheet", merr.Error())

	noVersion := newError(ErrBackupCreation, 0, "backup", cause)
	assert.Equal(t, "migration backup: backup creation failed: no such table: timesheet", noVersion.Error())
}
