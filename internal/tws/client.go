package tws

import "context"

// Client is the TWS capability surface. Read APIs feed the knowledge
// graph and status tools; write APIs are invoked only by approved
// agent tools.
type Client interface {
	// JobStatus returns the current plan instance of a job.
	JobStatus(ctx context.Context, jobName string) (*Job, error)

	// WorkstationStatus returns the state of a workstation.
	WorkstationStatus(ctx context.Context, name string) (*Workstation, error)

	// PlanSnapshot returns the current plan graph: jobs, dependencies,
	// resource usage, workstations.
	PlanSnapshot(ctx context.Context) (*PlanSnapshot, error)

	// Available reports whether the TWS master is reachable.
	Available(ctx context.Context) bool

	// RerunJob resubmits a job. Write API.
	RerunJob(ctx context.Context, jobName string) error

	// KillJob terminates a running job. Write API.
	KillJob(ctx context.Context, jobName string) error

	// ReleaseJob releases a held job. Write API.
	ReleaseJob(ctx context.Context, jobName string) error
}
