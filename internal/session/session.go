// Package session tracks conversation state: the turn transcript, the
// TWS entities mentioned so far, and pronoun resolution against them.
// Sessions live in Redis with a sliding TTL, or in memory when Redis
// is not configured.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/resync-ops/resync/internal/store"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxTrackedEntities caps each entity list. Older mentions fall off.
const maxTrackedEntities = 20

// Turn is one message in the conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReferencedEntities tracks mentioned TWS identifiers, most recent
// first, so pronouns resolve to the latest mention.
type ReferencedEntities struct {
	Jobs         []string `json:"jobs,omitempty"`
	Codes        []string `json:"codes,omitempty"`
	Workstations []string `json:"workstations,omitempty"`
}

// Session is one user's conversation. TurnCount counts exchanges, so
// it always equals both the number of user messages and the number of
// assistant messages in Turns.
type Session struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	CreatedAt  time.Time          `json:"created_at"`
	LastActive time.Time          `json:"last_active"`
	Turns      []Turn             `json:"turns"`
	TurnCount  int                `json:"turn_count"`
	Entities   ReferencedEntities `json:"entities"`
}

// New creates a session.
func New(id, userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
}

// AddTurn appends one exchange: the user message paired with the
// assistant reply. Both messages' TWS entities fold into the
// reference lists, the user's first so the assistant's mentions are
// most recent.
func (s *Session) AddTurn(userMsg, assistantMsg, intent string) {
	now := time.Now().UTC()
	s.Turns = append(s.Turns,
		Turn{Role: RoleUser, Content: userMsg, Intent: intent, Timestamp: now},
		Turn{Role: RoleAssistant, Content: assistantMsg, Intent: intent, Timestamp: now},
	)
	s.TurnCount++
	s.LastActive = now

	for _, content := range []string{userMsg, assistantMsg} {
		found := store.ExtractEntities(content)
		s.Entities.Jobs = pushRecent(s.Entities.Jobs, found.Jobs)
		s.Entities.Codes = pushRecent(s.Entities.Codes, found.Codes)
		s.Entities.Workstations = pushRecent(s.Entities.Workstations, found.Workstations)
	}
}

// pushRecent prepends new mentions, deduplicates, and caps the list.
// A re-mentioned entity moves back to the front.
func pushRecent(list []string, mentions []string) []string {
	if len(mentions) == 0 {
		return list
	}

	out := make([]string, 0, len(list)+len(mentions))
	seen := make(map[string]bool, len(list)+len(mentions))

	// Mentions arrive in text order; the last mention is the most recent.
	for i := len(mentions) - 1; i >= 0; i-- {
		if !seen[mentions[i]] {
			seen[mentions[i]] = true
			out = append(out, mentions[i])
		}
	}
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	if len(out) > maxTrackedEntities {
		out = out[:maxTrackedEntities]
	}
	return out
}

// Pronoun lexicon. Each pattern resolves against one entity list.
var (
	jobRefPattern  = regexp.MustCompile(`(?i)\b(it|that job|this job|the job)\b`)
	wsRefPattern   = regexp.MustCompile(`(?i)\b(that workstation|this workstation|the workstation)\b`)
	codeRefPattern = regexp.MustCompile(`(?i)\b(that error|this error|that code|the error)\b`)
)

// ResolveReferences rewrites pronouns in a query to the most recently
// mentioned entity of the matching kind. Returns the rewritten query
// and whether anything changed. Pronouns with no referent are left
// alone.
func (s *Session) ResolveReferences(query string) (string, bool) {
	resolved := query

	replace := func(pattern *regexp.Regexp, entities []string) {
		if len(entities) == 0 {
			return
		}
		resolved = pattern.ReplaceAllString(resolved, entities[0])
	}

	replace(wsRefPattern, s.Entities.Workstations)
	replace(codeRefPattern, s.Entities.Codes)
	replace(jobRefPattern, s.Entities.Jobs)

	return resolved, resolved != query
}

// ContextForPrompt renders the most recent turns for inclusion in an
// LLM prompt, oldest first.
func (s *Session) ContextForPrompt(maxMessages int) string {
	turns := s.Turns
	if maxMessages > 0 && len(turns) > maxMessages {
		turns = turns[len(turns)-maxMessages:]
	}
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration) bool {
	return time.Since(s.LastActive) > ttl
}
