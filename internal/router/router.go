// Package router chooses where a retrieval query goes: the knowledge
// graph, the document store, or both, with graph facts merged into the
// retrieved chunks. The chat path depends on this never failing hard:
// every breakage degrades to a smaller answer instead of an error.
package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/graph"
	"github.com/resync-ops/resync/internal/search"
	"github.com/resync-ops/resync/internal/store"
)

// Path names which retrieval sources a query was routed to.
type Path string

const (
	PathGraph Path = "graph"
	PathRAG   Path = "rag"
	PathBoth  Path = "both"
)

// maxChainDepth bounds graph traversals made on behalf of a query.
const maxChainDepth = 5

// GraphData is the plan evidence gathered for the query's jobs.
type GraphData struct {
	Chains    map[string][]string `json:"chains,omitempty"`
	Impacts   map[string][]string `json:"impacts,omitempty"`
	Conflicts []graph.Conflict    `json:"conflicts,omitempty"`
}

// Empty reports whether no graph evidence was found.
func (g *GraphData) Empty() bool {
	return g == nil || (len(g.Chains) == 0 && len(g.Impacts) == 0 && len(g.Conflicts) == 0)
}

// Classification records how the query was routed.
type Classification struct {
	Path      Path           `json:"path"`
	Entities  store.Entities `json:"entities"`
	UsedGraph bool           `json:"used_graph"`
	UsedRAG   bool           `json:"used_rag"`
}

// Metadata carries degradation detail for the caller.
type Metadata struct {
	// Error is set when every source failed and the response is empty.
	Error string `json:"error,omitempty"`

	// Degraded is set when a chosen source failed but another answered.
	Degraded bool `json:"degraded,omitempty"`
}

// Response is the routed retrieval result.
type Response struct {
	Documents      []search.Result `json:"documents"`
	Graph          *GraphData      `json:"graph,omitempty"`
	Classification Classification  `json:"classification"`
	Metadata       Metadata        `json:"metadata"`
}

// Searcher is the slice of the hybrid retriever the router needs.
type Searcher interface {
	Retrieve(ctx context.Context, query string, filters store.Filters) (*search.Response, error)
}

// Router fans a query out to the graph and the document store.
type Router struct {
	graph    *graph.Graph
	searcher Searcher
}

// New creates a query router. Either source may be nil; routing then
// skips it.
func New(g *graph.Graph, searcher Searcher) *Router {
	return &Router{graph: g, searcher: searcher}
}

var (
	graphPattern = regexp.MustCompile(`(?i)\b(depend|depends|dependency|dependencies|impact|impacts|downstream|upstream|chain|prerequisite|prerequisites|conflict|conflicts|blocking|blocked)\b`)
	ragPattern   = regexp.MustCompile(`(?i)\b(how|explain|documentation|docs|guide|procedure|what\s+is|meaning|mean)\b`)
)

// classify picks the path from query shape: relationship wording or
// multiple job references pull in the graph; documentation wording
// stays on RAG; anything else consults both.
func classify(query string, entities store.Entities) Path {
	graphish := graphPattern.MatchString(query) || len(entities.Jobs) > 1
	ragish := ragPattern.MatchString(query)

	switch {
	case graphish && !ragish:
		return PathGraph
	case ragish && !graphish:
		return PathRAG
	default:
		return PathBoth
	}
}

// Route retrieves evidence for a query. Filters narrow the document
// leg and may be nil. It never returns an error: failures shrink the
// response and set Metadata instead.
func (r *Router) Route(ctx context.Context, query string, filters store.Filters) *Response {
	resp := &Response{}
	if strings.TrimSpace(query) == "" {
		resp.Metadata.Error = "empty query"
		return resp
	}

	entities := store.ExtractEntities(query)
	path := classify(query, entities)
	resp.Classification = Classification{Path: path, Entities: entities}

	if path != PathRAG && r.graph != nil {
		gd, err := r.gatherGraph(ctx, query, entities)
		if err != nil {
			slog.Warn("graph path failed, falling back to documents",
				slog.Any("error", err))
			resp.Metadata.Degraded = true
		} else if !gd.Empty() {
			resp.Graph = gd
			resp.Classification.UsedGraph = true
		}
	}

	// The graph path still retrieves documents for context; only a
	// pure-RAG miss leaves the response empty.
	if r.searcher != nil {
		sr, err := r.searcher.Retrieve(ctx, query, filters)
		if err != nil {
			slog.Warn("document retrieval failed", slog.Any("error", err))
			if resp.Graph.Empty() {
				resp.Metadata.Error = "all retrieval sources failed"
			} else {
				resp.Metadata.Degraded = true
			}
		} else {
			resp.Documents = sr.Results
			resp.Classification.UsedRAG = true
			if sr.Degraded {
				resp.Metadata.Degraded = true
			}
		}
	} else if resp.Graph.Empty() {
		resp.Metadata.Error = "no retrieval source configured"
	}

	if !resp.Graph.Empty() {
		annotate(resp.Documents, resp.Graph)
	}
	return resp
}

// gatherGraph collects chains, impacts, and conflicts for the jobs the
// query names. Conflicts are pairwise, so they are fetched only when
// the query asks about contention and names at least two jobs.
func (r *Router) gatherGraph(ctx context.Context, query string, entities store.Entities) (*GraphData, error) {
	gd := &GraphData{
		Chains:  make(map[string][]string),
		Impacts: make(map[string][]string),
	}

	var known []string
	for _, job := range entities.Jobs {
		chain, err := r.graph.DependencyChain(ctx, job, maxChainDepth)
		if errors.IsNotFound(err) {
			// A job named in prose but absent from the plan is not a
			// routing failure.
			continue
		}
		if err != nil {
			return nil, err
		}
		known = append(known, job)
		if len(chain) > 1 {
			gd.Chains[job] = chain
		}

		impact, err := r.graph.ImpactAnalysis(ctx, job)
		if err != nil {
			return nil, err
		}
		if impact != nil && len(impact.DownstreamJobs) > 0 {
			gd.Impacts[job] = impact.DownstreamJobs
		}
	}

	if strings.Contains(strings.ToLower(query), "conflict") {
		for i := 0; i < len(known); i++ {
			for j := i + 1; j < len(known); j++ {
				conflicts, err := r.graph.ResourceConflicts(ctx, known[i], known[j])
				if err != nil {
					return nil, err
				}
				gd.Conflicts = append(gd.Conflicts, conflicts...)
			}
		}
	}
	return gd, nil
}

// annotate appends plan facts to chunks that mention a job the graph
// has evidence for, so the answer prompt sees document text and live
// plan structure side by side.
func annotate(docs []search.Result, gd *GraphData) {
	for i := range docs {
		var facts []string
		for _, job := range docs[i].Metadata.JobNames {
			if chain, ok := gd.Chains[job]; ok {
				facts = append(facts, job+" depends on "+strings.Join(chain[1:], " <- "))
			}
			if impacted, ok := gd.Impacts[job]; ok {
				facts = append(facts, job+" impacts "+strings.Join(impacted, ", "))
			}
		}
		if len(facts) > 0 {
			docs[i].Content += "\n[plan] " + strings.Join(facts, "; ")
		}
	}
}
