// Package tws defines the TWS client capability consumed by the
// knowledge graph, agent tools, and diagnostic engine. The concrete
// client (REST against the TWS master, z/OS connector, etc.) is out of
// core; this package holds the interface, the plan snapshot types, and
// a fake for tests.
package tws

import "time"

// JobState is a TWS internal job status.
type JobState string

const (
	StateSucc  JobState = "SUCC"  // completed successfully
	StateAbend JobState = "ABEND" // ended in error
	StateExec  JobState = "EXEC"  // executing
	StateReady JobState = "READY" // ready to start
	StateHold  JobState = "HOLD"  // held by operator or dependency
	StateWait  JobState = "WAIT"  // waiting on time or resource
	StateCancl JobState = "CANCL" // cancelled
)

// Terminal reports whether the state is a final outcome.
func (s JobState) Terminal() bool {
	return s == StateSucc || s == StateAbend || s == StateCancl
}

// Job is one job instance in the current plan. FolderPath and Name
// together identify the job; plans without folders leave FolderPath
// empty.
type Job struct {
	Name        string     `json:"name"`
	FolderPath  string     `json:"folder_path,omitempty"`
	Workstation string     `json:"workstation"`
	Status      JobState   `json:"status"`
	ReturnCode  int        `json:"return_code"`
	Priority    int        `json:"priority"`
	PlannedAt   time.Time  `json:"planned_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Dependency is a DEPENDS_ON edge: From cannot start until To completes.
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ResourceUse is a USES edge between a job and a logical resource.
type ResourceUse struct {
	JobName  string `json:"job_name"`
	Resource string `json:"resource"`
	Quantity int    `json:"quantity"`
}

// Workstation describes an agent or fault-tolerant workstation.
type Workstation struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // FTA, XA, MASTER, ...
	Linked   bool   `json:"linked"`
	JobLimit int    `json:"job_limit"`
	Running  int    `json:"running"`
}

// PlanSnapshot is a point-in-time view of the current plan, used to
// build the knowledge graph.
type PlanSnapshot struct {
	Jobs         []Job         `json:"jobs"`
	Dependencies []Dependency  `json:"dependencies"`
	ResourceUses []ResourceUse `json:"resource_uses"`
	Workstations []Workstation `json:"workstations"`
	TakenAt      time.Time     `json:"taken_at"`
}
