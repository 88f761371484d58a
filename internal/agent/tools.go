// Package agent implements the tool-using agent: a registry of TWS
// tools, a bounded reasoning loop driven by the completion model, and
// quarantine of low-confidence write actions into the audit queue.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/graph"
	"github.com/resync-ops/resync/internal/tws"
)

// Tool is one capability the agent can invoke.
type Tool interface {
	// Name is the identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does and its args.
	Description() string

	// ReadOnly reports whether the tool only observes. Write tools are
	// subject to confidence quarantine.
	ReadOnly() bool

	// Run executes the tool.
	Run(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds the agent's tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces it.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Describe renders the tool list for the model prompt.
func (r *Registry) Describe() string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		kind := "read"
		if !t.ReadOnly() {
			kind = "write"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", name, kind, t.Description())
	}
	return b.String()
}

// DefaultRegistry builds the standard tool set over TWS and the plan
// graph.
func DefaultRegistry(client tws.Client, g *graph.Graph) *Registry {
	r := NewRegistry()
	r.Register(&statusCheckTool{client: client})
	r.Register(&jobLookupTool{client: client})
	r.Register(&dependencyCheckTool{graph: g})
	r.Register(&workstationStatusTool{client: client})
	r.Register(&writeTool{
		name:        "rerun_job",
		description: "Rerun a job that ended. Args: job",
		run:         client.RerunJob,
	})
	r.Register(&writeTool{
		name:        "kill_job",
		description: "Kill an executing job. Args: job",
		run:         client.KillJob,
	})
	r.Register(&writeTool{
		name:        "release_job",
		description: "Release a held job. Args: job",
		run:         client.ReleaseJob,
	})
	return r
}

func requireArg(args map[string]string, key string) (string, error) {
	v := strings.TrimSpace(args[key])
	if v == "" {
		return "", errors.NewValidationError(
			fmt.Sprintf("tool argument %q is required", key), nil)
	}
	return v, nil
}

type statusCheckTool struct{ client tws.Client }

func (t *statusCheckTool) Name() string { return "status_check" }
func (t *statusCheckTool) Description() string {
	return "Current status of a job in the plan. Args: job"
}
func (t *statusCheckTool) ReadOnly() bool { return true }

func (t *statusCheckTool) Run(ctx context.Context, args map[string]string) (string, error) {
	jobName, err := requireArg(args, "job")
	if err != nil {
		return "", err
	}
	job, err := t.client.JobStatus(ctx, jobName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s on %s is %s (rc=%d)",
		job.Name, job.Workstation, job.Status, job.ReturnCode), nil
}

type jobLookupTool struct{ client tws.Client }

func (t *jobLookupTool) Name() string { return "job_lookup" }
func (t *jobLookupTool) Description() string {
	return "Full details of a job: timing, priority, workstation. Args: job"
}
func (t *jobLookupTool) ReadOnly() bool { return true }

func (t *jobLookupTool) Run(ctx context.Context, args map[string]string) (string, error) {
	jobName, err := requireArg(args, "job")
	if err != nil {
		return "", err
	}
	job, err := t.client.JobStatus(ctx, jobName)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "job=%s workstation=%s status=%s rc=%d priority=%d planned=%s",
		job.Name, job.Workstation, job.Status, job.ReturnCode, job.Priority,
		job.PlannedAt.Format("15:04"))
	if job.StartedAt != nil {
		fmt.Fprintf(&b, " started=%s", job.StartedAt.Format("15:04"))
	}
	if job.EndedAt != nil {
		fmt.Fprintf(&b, " ended=%s", job.EndedAt.Format("15:04"))
	}
	return b.String(), nil
}

type dependencyCheckTool struct{ graph *graph.Graph }

func (t *dependencyCheckTool) Name() string { return "dependency_check" }
func (t *dependencyCheckTool) Description() string {
	return "Prerequisite chain and downstream impact of a job. Args: job, depth (optional)"
}
func (t *dependencyCheckTool) ReadOnly() bool { return true }

func (t *dependencyCheckTool) Run(ctx context.Context, args map[string]string) (string, error) {
	jobName, err := requireArg(args, "job")
	if err != nil {
		return "", err
	}
	depth := 5
	if d := args["depth"]; d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 0 {
			return "", errors.NewValidationError("depth must be a non-negative integer", nil)
		}
		depth = parsed
	}

	chain, err := t.graph.DependencyChain(ctx, jobName, depth)
	if err != nil {
		return "", err
	}
	impact, err := t.graph.ImpactAnalysis(ctx, jobName)
	if err != nil {
		return "", err
	}

	if len(chain) == 0 || impact == nil {
		return "plan data unavailable", nil
	}
	return fmt.Sprintf("prerequisites: %s; impacts (%s): %s",
		strings.Join(chain, " <- "), impact.ImpactLevel,
		joinOrNone(impact.DownstreamJobs)), nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

type workstationStatusTool struct{ client tws.Client }

func (t *workstationStatusTool) Name() string { return "workstation_status" }
func (t *workstationStatusTool) Description() string {
	return "Link state and load of a workstation. Args: workstation"
}
func (t *workstationStatusTool) ReadOnly() bool { return true }

func (t *workstationStatusTool) Run(ctx context.Context, args map[string]string) (string, error) {
	name, err := requireArg(args, "workstation")
	if err != nil {
		return "", err
	}
	ws, err := t.client.WorkstationStatus(ctx, name)
	if err != nil {
		return "", err
	}
	link := "LINKED"
	if !ws.Linked {
		link = "UNLINKED"
	}
	return fmt.Sprintf("%s (%s) is %s, running %d/%d jobs",
		ws.Name, ws.Type, link, ws.Running, ws.JobLimit), nil
}

// writeTool wraps one TWS write verb.
type writeTool struct {
	name        string
	description string
	run         func(ctx context.Context, jobName string) error
}

func (t *writeTool) Name() string        { return t.name }
func (t *writeTool) Description() string { return t.description }
func (t *writeTool) ReadOnly() bool      { return false }

func (t *writeTool) Run(ctx context.Context, args map[string]string) (string, error) {
	jobName, err := requireArg(args, "job")
	if err != nil {
		return "", err
	}
	if err := t.run(ctx, jobName); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s submitted for %s", t.name, jobName), nil
}
