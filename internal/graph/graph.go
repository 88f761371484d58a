// Package graph builds a knowledge graph over the current TWS plan
// and answers structural queries: dependency chains, impact analysis,
// critical jobs, and resource conflicts. The plan snapshot is cached
// briefly; when TWS is unreachable every query returns empty results
// rather than failing the caller.
package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/tws"
)

// DefaultSnapshotTTL is how long a plan snapshot is reused.
const DefaultSnapshotTTL = 60 * time.Second

// planKey is the single cache key; the LRU exists for its TTL.
const planKey = "plan"

// maxCriticalPaths bounds how many chains an impact report carries.
const maxCriticalPaths = 3

// JobScore is one entry of the critical-jobs ranking.
type JobScore struct {
	JobName string  `json:"job_name"`
	Score   float64 `json:"score"`
}

// Impact describes what rides on a job: every transitive downstream
// job, the longest chains through them, and a coarse severity graded
// from the blast radius.
type Impact struct {
	DownstreamJobs []string   `json:"downstream_jobs"`
	CriticalPaths  [][]string `json:"critical_paths,omitempty"`
	ImpactLevel    string     `json:"estimated_impact_level"`
}

// Conflict is one resource two jobs contend for.
type Conflict struct {
	Resource string `json:"resource"`
	JobA     string `json:"job_a"`
	JobB     string `json:"job_b"`
}

// plan is the arena built from one snapshot: adjacency both ways plus
// resource usage, all by canonical job key.
type plan struct {
	jobs       map[string]tws.Job
	byName     map[string][]string // bare name -> canonical keys
	upstream   map[string][]string // job -> its prerequisites
	downstream map[string][]string // job -> jobs waiting on it
	usesByRes  map[string][]string // resource -> using jobs
	takenAt    time.Time
}

// entityKey is the canonical job identity: folder-qualified when the
// plan carries folders, the bare name otherwise.
func entityKey(j tws.Job) string {
	if j.FolderPath != "" {
		return j.FolderPath + "/" + j.Name
	}
	return j.Name
}

// resolve maps a job reference to its canonical key. References may be
// folder-qualified or bare; a bare name jobs in different folders
// share is ambiguous.
func (p *plan) resolve(ref string) (string, error) {
	if _, ok := p.jobs[ref]; ok {
		return ref, nil
	}
	keys := p.byName[ref]
	switch len(keys) {
	case 0:
		return "", errors.NewNotFoundError("job", ref)
	case 1:
		return keys[0], nil
	default:
		return "", errors.NewValidationError(
			"job name is ambiguous, qualify it with its folder", nil).
			WithDetail("job", ref)
	}
}

// Graph answers plan-structure queries.
type Graph struct {
	client tws.Client
	cache  *expirable.LRU[string, *plan]
}

// New creates a graph over the TWS client. ttl bounds snapshot reuse;
// zero picks the default.
func New(client tws.Client, ttl time.Duration) *Graph {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Graph{
		client: client,
		cache:  expirable.NewLRU[string, *plan](1, nil, ttl),
	}
}

// current returns the cached plan, refreshing it from TWS when stale.
// A nil plan with nil error means TWS is unavailable.
func (g *Graph) current(ctx context.Context) (*plan, error) {
	if p, ok := g.cache.Get(planKey); ok {
		return p, nil
	}

	if !g.client.Available(ctx) {
		slog.Warn("tws unavailable, graph queries return empty results")
		return nil, nil
	}

	snap, err := g.client.PlanSnapshot(ctx)
	if err != nil {
		slog.Warn("plan snapshot failed, graph queries return empty results",
			slog.Any("error", err))
		return nil, nil
	}

	p := buildPlan(snap)
	g.cache.Add(planKey, p)
	return p, nil
}

// Refresh drops the cached snapshot so the next query rebuilds.
func (g *Graph) Refresh() {
	g.cache.Remove(planKey)
}

func buildPlan(snap *tws.PlanSnapshot) *plan {
	p := &plan{
		jobs:       make(map[string]tws.Job, len(snap.Jobs)),
		byName:     make(map[string][]string, len(snap.Jobs)),
		upstream:   make(map[string][]string),
		downstream: make(map[string][]string),
		usesByRes:  make(map[string][]string),
		takenAt:    snap.TakenAt,
	}
	for _, j := range snap.Jobs {
		key := entityKey(j)
		p.jobs[key] = j
		p.byName[j.Name] = append(p.byName[j.Name], key)
	}

	// Dependency and resource rows may name jobs bare even when the
	// job carries a folder; canonicalize where the name is unique.
	canon := func(name string) string {
		if keys := p.byName[name]; len(keys) == 1 {
			return keys[0]
		}
		return name
	}
	for _, d := range snap.Dependencies {
		from, to := canon(d.From), canon(d.To)
		p.upstream[from] = append(p.upstream[from], to)
		p.downstream[to] = append(p.downstream[to], from)
	}
	for _, u := range snap.ResourceUses {
		p.usesByRes[u.Resource] = append(p.usesByRes[u.Resource], canon(u.JobName))
	}
	return p
}

// DependencyChain returns the job and its transitive prerequisites in
// breadth-first order, cut off at maxDepth hops. maxDepth zero returns
// just the job itself.
func (g *Graph) DependencyChain(ctx context.Context, jobName string, maxDepth int) ([]string, error) {
	if jobName == "" {
		return nil, errors.NewEmptyKeyError("job name")
	}
	p, err := g.current(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	key, err := p.resolve(jobName)
	if err != nil {
		return nil, err
	}
	return walk(key, maxDepth, p.upstream), nil
}

// ImpactAnalysis reports what depends on the given job. A nil report
// with nil error means no plan is available.
func (g *Graph) ImpactAnalysis(ctx context.Context, jobName string) (*Impact, error) {
	if jobName == "" {
		return nil, errors.NewEmptyKeyError("job name")
	}
	p, err := g.current(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	key, err := p.resolve(jobName)
	if err != nil {
		return nil, err
	}

	downstream := walk(key, len(p.jobs), p.downstream)[1:]
	return &Impact{
		DownstreamJobs: downstream,
		CriticalPaths:  criticalPaths(key, p.downstream),
		ImpactLevel:    impactLevel(len(downstream)),
	}, nil
}

// impactLevel grades the blast radius by downstream count.
func impactLevel(n int) string {
	switch {
	case n == 0:
		return "none"
	case n <= 2:
		return "low"
	case n <= 5:
		return "medium"
	case n <= 20:
		return "high"
	default:
		return "critical"
	}
}

// criticalPaths enumerates chains from the job down to jobs nothing
// waits on, longest first, capped at maxCriticalPaths. A job with no
// downstream yields no paths.
func criticalPaths(start string, adj map[string][]string) [][]string {
	var paths [][]string
	onPath := map[string]bool{}

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		onPath[node] = true
		path = append(path, node)

		neighbors := append([]string(nil), adj[node]...)
		sort.Strings(neighbors)
		leaf := true
		for _, n := range neighbors {
			if onPath[n] {
				continue
			}
			leaf = false
			dfs(n, path)
		}
		if leaf && len(path) > 1 {
			paths = append(paths, append([]string(nil), path...))
		}
		onPath[node] = false
	}
	dfs(start, nil)

	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return strings.Join(paths[i], "/") < strings.Join(paths[j], "/")
	})
	if len(paths) > maxCriticalPaths {
		paths = paths[:maxCriticalPaths]
	}
	return paths
}

// walk breadth-first traverses adj from start up to maxDepth hops,
// start included. Neighbors expand in sorted order so output is
// deterministic regardless of snapshot ordering.
func walk(start string, maxDepth int, adj map[string][]string) []string {
	visited := map[string]bool{start: true}
	order := []string{start}
	frontier := []string{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			neighbors := append([]string(nil), adj[name]...)
			sort.Strings(neighbors)
			for _, n := range neighbors {
				if !visited[n] {
					visited[n] = true
					order = append(order, n)
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return order
}

// CriticalJobs ranks jobs by how much of the plan flows through them:
// the product of transitive upstream and downstream counts. Returns
// the top n, ties broken by name.
func (g *Graph) CriticalJobs(ctx context.Context, n int) ([]JobScore, error) {
	p, err := g.current(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	scores := make([]JobScore, 0, len(p.jobs))
	for name := range p.jobs {
		up := len(walk(name, len(p.jobs), p.upstream)) - 1
		down := len(walk(name, len(p.jobs), p.downstream)) - 1
		score := float64(up) * float64(down)
		if score > 0 {
			scores = append(scores, JobScore{JobName: name, Score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].JobName < scores[j].JobName
	})
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores, nil
}

// ResourceConflicts returns the resources both named jobs demand, in
// resource order. A job compared against itself has no conflicts.
func (g *Graph) ResourceConflicts(ctx context.Context, jobA, jobB string) ([]Conflict, error) {
	if jobA == "" || jobB == "" {
		return nil, errors.NewEmptyKeyError("job name")
	}
	p, err := g.current(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	keyA, err := p.resolve(jobA)
	if err != nil {
		return nil, err
	}
	keyB, err := p.resolve(jobB)
	if err != nil {
		return nil, err
	}
	if keyA == keyB {
		return nil, nil
	}

	resources := make([]string, 0, len(p.usesByRes))
	for res := range p.usesByRes {
		resources = append(resources, res)
	}
	sort.Strings(resources)

	var conflicts []Conflict
	for _, res := range resources {
		var hasA, hasB bool
		for _, key := range p.usesByRes[res] {
			hasA = hasA || key == keyA
			hasB = hasB || key == keyB
		}
		if hasA && hasB {
			conflicts = append(conflicts, Conflict{Resource: res, JobA: keyA, JobB: keyB})
		}
	}
	return conflicts, nil
}

// SnapshotAge returns how old the cached plan is, and whether a plan
// is cached at all.
func (g *Graph) SnapshotAge() (time.Duration, bool) {
	p, ok := g.cache.Get(planKey)
	if !ok {
		return 0, false
	}
	return time.Since(p.takenAt), true
}
