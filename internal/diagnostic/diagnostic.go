// Package diagnostic implements the multi-step troubleshooting loop: a
// cyclic state machine that diagnoses a problem, researches the
// knowledge base, verifies against live TWS state, and proposes fixes,
// with a human approval gate before any write runs.
package diagnostic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/resync-ops/resync/internal/audit"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/search"
	"github.com/resync-ops/resync/internal/store"
	"github.com/resync-ops/resync/internal/tws"
)

// Phase is one node of the diagnostic state machine.
type Phase string

const (
	PhaseDiagnose Phase = "DIAGNOSE"
	PhaseResearch Phase = "RESEARCH"
	PhaseVerify   Phase = "VERIFY"
	PhasePropose  Phase = "PROPOSE"
	PhaseApprove  Phase = "APPROVE"
	PhaseExecute  Phase = "EXECUTE"
	PhaseValidate Phase = "VALIDATE"
	PhaseEnd      Phase = "END"
)

// transitions is the legal edge set. step panics on any move outside
// it; a bad edge is a programming error, not a runtime condition.
var transitions = map[Phase][]Phase{
	PhaseDiagnose: {PhaseResearch},
	PhaseResearch: {PhaseVerify},
	PhaseVerify:   {PhasePropose, PhaseDiagnose, PhaseEnd},
	PhasePropose:  {PhaseApprove, PhaseExecute, PhaseEnd},
	PhaseApprove:  {PhaseExecute, PhaseEnd},
	PhaseExecute:  {PhaseValidate},
	PhaseValidate: {PhaseEnd},
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	// OutcomeSuccess: actions executed and validated clean.
	OutcomeSuccess Outcome = "success"

	// OutcomeResolved: the problem needed no write action.
	OutcomeResolved Outcome = "resolved"

	// OutcomePartial: the iteration budget ran out before the engine
	// was confident enough to propose.
	OutcomePartial Outcome = "partial"

	// OutcomeResidual: actions executed but validation still sees the
	// problem.
	OutcomeResidual Outcome = "residual"

	// OutcomePendingApproval: a proposal is parked in the audit queue.
	OutcomePendingApproval Outcome = "pending_approval"

	// OutcomeRejected: the reviewer declined the proposal.
	OutcomeRejected Outcome = "rejected"

	// OutcomeCancelled: the caller cancelled mid-run.
	OutcomeCancelled Outcome = "cancelled"
)

// Action is one proposed write against TWS.
type Action struct {
	Tool   string `json:"tool"` // rerun_job, kill_job, release_job
	Job    string `json:"job"`
	Reason string `json:"reason,omitempty"`

	ApprovalID string `json:"approval_id,omitempty"`
	Executed   bool   `json:"executed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// State is the machine's working memory. Run and Resume return a
// snapshot of it; a pending-approval snapshot is the input to Resume.
type State struct {
	Problem             string    `json:"problem"`
	Phase               Phase     `json:"phase"`
	Iteration           int       `json:"iteration"`
	Confidence          float64   `json:"confidence"`
	Findings            []string  `json:"findings,omitempty"`
	ProposedActions     []Action  `json:"proposed_actions,omitempty"`
	VerificationResults []string  `json:"verification_results,omitempty"`
	ApprovalStatus      string    `json:"approval_status,omitempty"`
	FinalResult         string    `json:"final_result,omitempty"`
	Outcome             Outcome   `json:"outcome,omitempty"`
	StartedAt           time.Time `json:"started_at"`
}

// Searcher is the slice of the retriever the research phase needs.
type Searcher interface {
	Retrieve(ctx context.Context, query string, filters store.Filters) (*search.Response, error)
}

// Engine drives the state machine.
type Engine struct {
	client          llm.Client
	searcher        Searcher
	tws             tws.Client
	queue           *audit.Queue
	maxIterations   int
	minConfidence   float64
	requireApproval bool
}

// NewEngine wires the diagnostic engine. maxIterations <= 0 defaults
// to 5, minConfidence <= 0 to 0.7.
func NewEngine(client llm.Client, searcher Searcher, twsClient tws.Client, queue *audit.Queue, maxIterations int, minConfidence float64, requireApproval bool) *Engine {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	if minConfidence <= 0 {
		minConfidence = 0.7
	}
	return &Engine{
		client:          client,
		searcher:        searcher,
		tws:             twsClient,
		queue:           queue,
		maxIterations:   maxIterations,
		minConfidence:   minConfidence,
		requireApproval: requireApproval,
	}
}

// Run works a problem until the machine reaches END or parks on
// approval. Cancellation is honored at phase boundaries and returns
// the state as of the last completed phase.
func (e *Engine) Run(ctx context.Context, problem string) (*State, error) {
	if strings.TrimSpace(problem) == "" {
		return nil, errors.NewValidationError("problem must not be empty", nil)
	}

	st := &State{
		Problem:   problem,
		Phase:     PhaseDiagnose,
		Iteration: 1,
		StartedAt: time.Now().UTC(),
	}
	return e.drive(ctx, st)
}

// Resume continues a run that parked in APPROVE once the reviewer has
// decided. Approved proposals execute; any rejection ends the run.
func (e *Engine) Resume(ctx context.Context, st *State) (*State, error) {
	if st == nil || st.Phase != PhaseApprove {
		return nil, errors.NewValidationError("resume needs a state parked in APPROVE", nil)
	}

	for i := range st.ProposedActions {
		a := &st.ProposedActions[i]
		rec, err := e.queue.Get(ctx, a.ApprovalID)
		if err != nil {
			return st, err
		}
		switch rec.Status {
		case audit.StatusPending:
			// Reviewer has not decided yet; stay parked.
			return st, nil
		case audit.StatusRejected:
			st.ApprovalStatus = "rejected"
			st.Outcome = OutcomeRejected
			st.FinalResult = fmt.Sprintf("action %s on %s was rejected by %s",
				a.Tool, a.Job, rec.ReviewedBy)
			e.move(st, PhaseEnd)
			return st, nil
		}
	}

	st.ApprovalStatus = "approved"
	e.move(st, PhaseExecute)
	return e.drive(ctx, st)
}

// drive runs phases until END, a park, or cancellation.
func (e *Engine) drive(ctx context.Context, st *State) (*State, error) {
	for st.Phase != PhaseEnd {
		if ctx.Err() != nil {
			st.Outcome = OutcomeCancelled
			st.FinalResult = "cancelled at phase " + string(st.Phase)
			return st, nil
		}

		parked, err := e.step(ctx, st)
		if err != nil {
			return st, err
		}
		if parked {
			return st, nil
		}
	}
	return st, nil
}

// step executes the current phase and moves to the next. Returns true
// when the run parked waiting for human approval.
func (e *Engine) step(ctx context.Context, st *State) (bool, error) {
	switch st.Phase {
	case PhaseDiagnose:
		if err := e.diagnose(ctx, st); err != nil {
			return false, err
		}
		e.move(st, PhaseResearch)

	case PhaseResearch:
		e.research(ctx, st)
		e.move(st, PhaseVerify)

	case PhaseVerify:
		if err := e.verify(ctx, st); err != nil {
			return false, err
		}
		switch {
		case st.Confidence >= e.minConfidence:
			e.move(st, PhasePropose)
		case st.Iteration >= e.maxIterations:
			st.Outcome = OutcomePartial
			st.FinalResult = fmt.Sprintf(
				"no confident diagnosis after %d iterations; best confidence %.2f",
				st.Iteration, st.Confidence)
			e.move(st, PhaseEnd)
		default:
			st.Iteration++
			e.move(st, PhaseDiagnose)
		}

	case PhasePropose:
		if err := e.propose(ctx, st); err != nil {
			return false, err
		}
		switch {
		case len(st.ProposedActions) == 0:
			st.Outcome = OutcomeResolved
			e.move(st, PhaseEnd)
		case e.requireApproval:
			if err := e.park(ctx, st); err != nil {
				return false, err
			}
			e.move(st, PhaseApprove)
			return true, nil
		default:
			e.move(st, PhaseExecute)
		}

	case PhaseExecute:
		e.execute(ctx, st)
		e.move(st, PhaseValidate)

	case PhaseValidate:
		e.validate(ctx, st)
		e.move(st, PhaseEnd)

	default:
		return false, errors.InternalError(
			fmt.Sprintf("phase %s has no handler", st.Phase), nil)
	}
	return false, nil
}

func (e *Engine) move(st *State, next Phase) {
	for _, legal := range transitions[st.Phase] {
		if legal == next {
			st.Phase = next
			return
		}
	}
	panic(fmt.Sprintf("diagnostic: illegal transition %s -> %s", st.Phase, next))
}

const diagnosePrompt = `You are diagnosing a TWS scheduling problem.

Problem: %s

Findings so far:
%s

Respond with JSON only:
{"hypothesis": "<most likely cause>", "search_query": "<knowledge base query to test it>"}`

func (e *Engine) diagnose(ctx context.Context, st *State) error {
	raw, err := e.client.Complete(ctx,
		fmt.Sprintf(diagnosePrompt, st.Problem, bulletList(st.Findings)),
		llm.Params{MaxTokens: 256, Temperature: 0, JSONMode: true})
	if err != nil {
		return errors.NewIntegrationError("diagnostic", err)
	}

	var parsed struct {
		Hypothesis  string `json:"hypothesis"`
		SearchQuery string `json:"search_query"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return errors.NewDataParsingError("parse diagnosis", err)
	}
	if parsed.Hypothesis != "" {
		st.Findings = append(st.Findings, "hypothesis: "+parsed.Hypothesis)
	}
	if parsed.SearchQuery != "" {
		st.Findings = append(st.Findings, "query: "+parsed.SearchQuery)
	}
	return nil
}

// research consults the knowledge base for the latest hypothesis. A
// broken retriever degrades the run instead of ending it.
func (e *Engine) research(ctx context.Context, st *State) {
	query := st.Problem
	for i := len(st.Findings) - 1; i >= 0; i-- {
		if q, ok := strings.CutPrefix(st.Findings[i], "query: "); ok {
			query = q
			break
		}
	}

	resp, err := e.searcher.Retrieve(ctx, query, nil)
	if err != nil {
		slog.Warn("diagnostic research failed",
			slog.String("query", query),
			slog.Any("error", err))
		st.Findings = append(st.Findings, "research unavailable")
		return
	}

	for i, r := range resp.Results {
		if i == 3 {
			break
		}
		st.Findings = append(st.Findings, "doc: "+firstLine(r.Content))
	}
}

const verifyPrompt = `You verified a TWS problem hypothesis against live state.

Problem: %s

Findings:
%s

Live job state:
%s

Respond with JSON only:
{"confidence": 0.0-1.0, "assessment": "<one sentence>"}`

// verify checks the live state of every job named in the problem and
// asks the model how well the evidence supports the hypothesis.
func (e *Engine) verify(ctx context.Context, st *State) error {
	var live []string
	for _, job := range store.ExtractEntities(st.Problem).Jobs {
		j, err := e.tws.JobStatus(ctx, job)
		if err != nil {
			live = append(live, fmt.Sprintf("%s: unavailable (%v)", job, err))
			continue
		}
		live = append(live, fmt.Sprintf("%s: %s rc=%d on %s",
			j.Name, j.Status, j.ReturnCode, j.Workstation))
	}
	if len(live) == 0 {
		live = append(live, "no jobs named in the problem")
	}
	st.VerificationResults = append(st.VerificationResults, live...)

	raw, err := e.client.Complete(ctx,
		fmt.Sprintf(verifyPrompt, st.Problem, bulletList(st.Findings), bulletList(live)),
		llm.Params{MaxTokens: 128, Temperature: 0, JSONMode: true})
	if err != nil {
		return errors.NewIntegrationError("diagnostic", err)
	}

	var parsed struct {
		Confidence float64 `json:"confidence"`
		Assessment string  `json:"assessment"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return errors.NewDataParsingError("parse verification", err)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return errors.NewDataParsingError("confidence out of range", nil)
	}

	st.Confidence = parsed.Confidence
	if parsed.Assessment != "" {
		st.VerificationResults = append(st.VerificationResults, parsed.Assessment)
	}
	return nil
}

const proposePrompt = `You diagnosed a TWS problem and are confident in the cause.

Problem: %s

Findings:
%s

Propose the fix. Allowed tools: rerun_job, kill_job, release_job. An
empty action list means advice only, no write needed.

Respond with JSON only:
{"summary": "<resolution summary for the operator>",
 "actions": [{"tool": "<tool>", "job": "<job>", "reason": "<why>"}]}`

func (e *Engine) propose(ctx context.Context, st *State) error {
	raw, err := e.client.Complete(ctx,
		fmt.Sprintf(proposePrompt, st.Problem, bulletList(st.Findings)),
		llm.Params{MaxTokens: 512, Temperature: 0, JSONMode: true})
	if err != nil {
		return errors.NewIntegrationError("diagnostic", err)
	}

	var parsed struct {
		Summary string   `json:"summary"`
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return errors.NewDataParsingError("parse proposal", err)
	}

	for _, a := range parsed.Actions {
		if !validTool(a.Tool) {
			return errors.NewValidationError(
				fmt.Sprintf("proposed tool %q is not allowed", a.Tool), nil)
		}
		if a.Job == "" {
			return errors.NewValidationError("proposed action names no job", nil)
		}
	}

	st.FinalResult = parsed.Summary
	st.ProposedActions = parsed.Actions
	return nil
}

func validTool(tool string) bool {
	switch tool {
	case "rerun_job", "kill_job", "release_job":
		return true
	}
	return false
}

// park enqueues every proposed action for human review.
func (e *Engine) park(ctx context.Context, st *State) error {
	for i := range st.ProposedActions {
		a := &st.ProposedActions[i]
		rec := &audit.Record{
			Action:     a.Tool,
			Target:     a.Job,
			Confidence: st.Confidence,
			Reason:     a.Reason,
		}
		if _, err := e.queue.Add(ctx, rec); err != nil {
			return err
		}
		a.ApprovalID = rec.ID
	}
	st.ApprovalStatus = "pending"
	st.Outcome = OutcomePendingApproval
	return nil
}

// execute runs every action, rolling forward past individual failures
// so one bad verb does not strand the rest of the plan.
func (e *Engine) execute(ctx context.Context, st *State) {
	for i := range st.ProposedActions {
		a := &st.ProposedActions[i]

		var err error
		switch a.Tool {
		case "rerun_job":
			err = e.tws.RerunJob(ctx, a.Job)
		case "kill_job":
			err = e.tws.KillJob(ctx, a.Job)
		case "release_job":
			err = e.tws.ReleaseJob(ctx, a.Job)
		}
		if err != nil {
			a.Error = err.Error()
			slog.Warn("diagnostic action failed, continuing",
				slog.String("tool", a.Tool),
				slog.String("job", a.Job),
				slog.Any("error", err))
			continue
		}
		a.Executed = true
	}
}

// validate re-checks every acted-on job. Any job still in ABEND, or
// any action that failed to execute, leaves a residual problem.
func (e *Engine) validate(ctx context.Context, st *State) {
	residual := false
	for _, a := range st.ProposedActions {
		if !a.Executed {
			residual = true
			continue
		}
		j, err := e.tws.JobStatus(ctx, a.Job)
		if err != nil {
			st.VerificationResults = append(st.VerificationResults,
				fmt.Sprintf("post-check %s: unavailable (%v)", a.Job, err))
			residual = true
			continue
		}
		st.VerificationResults = append(st.VerificationResults,
			fmt.Sprintf("post-check %s: %s", j.Name, j.Status))
		if j.Status == tws.StateAbend {
			residual = true
		}
	}

	if residual {
		st.Outcome = OutcomeResidual
		return
	}
	st.Outcome = OutcomeSuccess
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160]
	}
	return s
}
