// Package intent classifies what the user wants and routes the
// request to the right execution path. A cheap rule stage handles the
// common cases; the completion model is consulted only when the rules
// are unsure.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/store"
)

// Intent is a recognized request category.
type Intent string

const (
	IntentGreeting        Intent = "GREETING"
	IntentGeneral         Intent = "GENERAL"
	IntentStatus          Intent = "STATUS"
	IntentJobManagement   Intent = "JOB_MANAGEMENT"
	IntentMonitoring      Intent = "MONITORING"
	IntentTroubleshooting Intent = "TROUBLESHOOTING"
	IntentAnalysis        Intent = "ANALYSIS"
	IntentReporting       Intent = "REPORTING"
)

// Route is the execution path an intent maps to.
type Route string

const (
	// RouteRAG answers from the knowledge base only.
	RouteRAG Route = "rag_only"

	// RouteAgentic lets the agent use TWS tools.
	RouteAgentic Route = "agentic"

	// RouteDiagnostic enters the structured diagnostic flow.
	RouteDiagnostic Route = "diagnostic"
)

// RouteFor maps an intent to its execution path.
func RouteFor(intent Intent) Route {
	switch intent {
	case IntentStatus, IntentJobManagement, IntentMonitoring, IntentAnalysis:
		return RouteAgentic
	case IntentTroubleshooting:
		return RouteDiagnostic
	default:
		return RouteRAG
	}
}

// Classification is the classifier's verdict.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Route      Route   `json:"route"`

	// Runner-up intent and its confidence, used for the ambiguity check.
	Second           Intent  `json:"second,omitempty"`
	SecondConfidence float64 `json:"second_confidence,omitempty"`

	// FromLLM marks that the rule stage deferred to the model.
	FromLLM bool `json:"from_llm,omitempty"`
}

// Thresholds for the two-stage flow.
const (
	// llmThreshold: below this rule confidence the model is consulted.
	llmThreshold = 0.6

	// clarifyThreshold: below this the caller should ask the user.
	clarifyThreshold = 0.4

	// tieMargin: top-two confidences closer than this are ambiguous.
	tieMargin = 0.1
)

// NeedsClarification reports whether the caller should ask the user to
// rephrase instead of acting.
func (c Classification) NeedsClarification() bool {
	if c.Confidence < clarifyThreshold {
		return true
	}
	return c.Second != "" && c.Confidence-c.SecondConfidence < tieMargin
}

// keyword lists per intent. Scoring counts hits weighted against
// query length, so a short pointed query scores high.
var intentKeywords = map[Intent][]string{
	IntentGreeting:        {"hello", "hi", "hey", "good morning", "good afternoon", "thanks", "thank you"},
	IntentStatus:          {"status", "state", "running", "finished", "completed", "current", "progress"},
	IntentJobManagement:   {"rerun", "restart", "kill", "cancel", "release", "hold", "submit", "stop"},
	IntentMonitoring:      {"monitor", "watch", "alert", "workstation", "linked", "health", "plan"},
	IntentTroubleshooting: {"fail", "failed", "failing", "abend", "abended", "error", "broken", "stuck", "why", "wrong", "problem"},
	IntentAnalysis:        {"impact", "depend", "dependency", "dependencies", "critical", "chain", "affect", "downstream", "upstream", "conflict"},
	IntentReporting:       {"report", "summary", "summarize", "overview", "history", "yesterday", "last week", "statistics"},
}

// Classifier runs the two-stage intent classification.
type Classifier struct {
	client llm.Client // nil disables the LLM stage
}

// NewClassifier creates a classifier. client may be nil; then only the
// rule stage runs.
func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify determines the intent of a query.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, error) {
	if strings.TrimSpace(query) == "" {
		return Classification{}, errors.NewValidationError("query must not be empty", nil)
	}

	result := ruleClassify(query)
	if result.Confidence >= llmThreshold || c.client == nil {
		result.Route = RouteFor(result.Intent)
		return result, nil
	}

	llmResult, err := c.llmClassify(ctx, query)
	if err != nil {
		// The model being down must not block routing; the rule verdict
		// stands at its low confidence.
		slog.Warn("llm intent stage failed, keeping rule verdict",
			slog.Any("error", err))
		result.Route = RouteFor(result.Intent)
		return result, nil
	}

	llmResult.Route = RouteFor(llmResult.Intent)
	return llmResult, nil
}

// ruleClassify scores each intent by keyword and entity evidence.
func ruleClassify(query string) Classification {
	lower := strings.ToLower(query)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_' || r == '=')
	})
	words := len(fields)
	if words == 0 {
		words = 1
	}
	wordSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		wordSet[f] = true
	}

	scores := make(map[Intent]float64, len(intentKeywords))
	for intent, keywords := range intentKeywords {
		var hits int
		for _, kw := range keywords {
			// Single-word keywords match whole words only; phrases
			// match as substrings.
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					hits++
				}
			} else if wordSet[kw] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		// Match density, saturating: every hit helps, later ones less.
		score := float64(hits) / float64(hits+1)
		if float64(hits) >= float64(words)/2 {
			score += 0.15
		}
		scores[intent] = score
	}

	// A concrete TWS identifier is strong evidence the user wants to
	// act on or inspect something specific.
	entities := store.ExtractEntities(query)
	if !entities.IsEmpty() {
		for _, intent := range []Intent{IntentStatus, IntentJobManagement, IntentTroubleshooting, IntentAnalysis, IntentMonitoring} {
			if _, ok := scores[intent]; ok {
				scores[intent] += 0.2
			}
		}
	}

	if len(scores) == 0 {
		return Classification{Intent: IntentGeneral, Confidence: 0.3}
	}

	ranked := make([]Classification, 0, len(scores))
	for intent, score := range scores {
		if score > 1 {
			score = 1
		}
		ranked = append(ranked, Classification{Intent: intent, Confidence: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Intent < ranked[j].Intent
	})

	top := ranked[0]
	if len(ranked) > 1 {
		top.Second = ranked[1].Intent
		top.SecondConfidence = ranked[1].Confidence
	}
	return top
}

const classifyPrompt = `Classify the TWS operator request into exactly one intent:
GREETING, GENERAL, STATUS, JOB_MANAGEMENT, MONITORING, TROUBLESHOOTING, ANALYSIS, REPORTING.

Respond with JSON only: {"intent": "...", "confidence": 0.0-1.0}

Request: %s`

func (c *Classifier) llmClassify(ctx context.Context, query string) (Classification, error) {
	raw, err := c.client.Complete(ctx, fmt.Sprintf(classifyPrompt, query), llm.Params{
		MaxTokens:   64,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return Classification{}, errors.NewIntegrationError("intent classifier", err)
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Classification{}, errors.NewDataParsingError("parse intent response", err)
	}

	intent := Intent(parsed.Intent)
	if _, known := intentKeywords[intent]; !known && intent != IntentGeneral {
		return Classification{}, errors.NewDataParsingError(
			fmt.Sprintf("unknown intent %q", parsed.Intent), nil)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return Classification{}, errors.NewDataParsingError("confidence out of range", nil)
	}

	return Classification{Intent: intent, Confidence: parsed.Confidence, FromLLM: true}, nil
}
