package tws

import (
	"context"
	"sync"

	"github.com/resync-ops/resync/internal/errors"
)

// Fake is an in-memory TWS client for tests. Populate Snapshot with
// plan data; write calls mutate job state and are recorded.
type Fake struct {
	mu sync.Mutex

	// Snapshot is the plan returned by PlanSnapshot and consulted by
	// the per-job reads.
	Snapshot PlanSnapshot

	// Down simulates an unreachable TWS master: reads and writes fail
	// with an integration error and Available returns false.
	Down bool

	// WriteCalls records write API invocations as "verb:job".
	WriteCalls []string
}

// Verify interface implementation at compile time.
var _ Client = (*Fake)(nil)

// NewFake creates an empty fake client.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) unavailable() error {
	return errors.NewIntegrationError("tws", errors.InternalError("master unreachable", nil))
}

// JobStatus returns the job from the snapshot.
func (f *Fake) JobStatus(_ context.Context, jobName string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Down {
		return nil, f.unavailable()
	}
	if jobName == "" {
		return nil, errors.NewEmptyKeyError("job name")
	}

	for i := range f.Snapshot.Jobs {
		if f.Snapshot.Jobs[i].Name == jobName {
			job := f.Snapshot.Jobs[i]
			return &job, nil
		}
	}
	return nil, errors.NewNotFoundError("job", jobName)
}

// WorkstationStatus returns the workstation from the snapshot.
func (f *Fake) WorkstationStatus(_ context.Context, name string) (*Workstation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Down {
		return nil, f.unavailable()
	}

	for i := range f.Snapshot.Workstations {
		if f.Snapshot.Workstations[i].Name == name {
			ws := f.Snapshot.Workstations[i]
			return &ws, nil
		}
	}
	return nil, errors.NewNotFoundError("workstation", name)
}

// PlanSnapshot returns a copy of the configured snapshot.
func (f *Fake) PlanSnapshot(_ context.Context) (*PlanSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Down {
		return nil, f.unavailable()
	}

	snap := PlanSnapshot{
		Jobs:         append([]Job(nil), f.Snapshot.Jobs...),
		Dependencies: append([]Dependency(nil), f.Snapshot.Dependencies...),
		ResourceUses: append([]ResourceUse(nil), f.Snapshot.ResourceUses...),
		Workstations: append([]Workstation(nil), f.Snapshot.Workstations...),
		TakenAt:      f.Snapshot.TakenAt,
	}
	return &snap, nil
}

// Available reports the inverse of Down.
func (f *Fake) Available(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Down
}

// RerunJob marks the job READY and records the call.
func (f *Fake) RerunJob(_ context.Context, jobName string) error {
	return f.write("rerun", jobName, StateReady)
}

// KillJob marks the job ABEND and records the call.
func (f *Fake) KillJob(_ context.Context, jobName string) error {
	return f.write("kill", jobName, StateAbend)
}

// ReleaseJob marks the job READY and records the call.
func (f *Fake) ReleaseJob(_ context.Context, jobName string) error {
	return f.write("release", jobName, StateReady)
}

func (f *Fake) write(verb, jobName string, next JobState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Down {
		return f.unavailable()
	}
	if jobName == "" {
		return errors.NewEmptyKeyError("job name")
	}

	f.WriteCalls = append(f.WriteCalls, verb+":"+jobName)

	for i := range f.Snapshot.Jobs {
		if f.Snapshot.Jobs[i].Name == jobName {
			f.Snapshot.Jobs[i].Status = next
			return nil
		}
	}
	return errors.NewNotFoundError("job", jobName)
}
