package llm

import (
	"context"
	stderrors "errors"

	"github.com/resync-ops/resync/internal/errors"
)

var errNotConfigured = stderrors.New("no llm endpoint configured")

// Disabled is the client wired when no LLM endpoint is configured.
// Every completion fails with an integration error, which callers
// surface as a degraded answer rather than a crash.
type Disabled struct{}

// Verify interface implementation at compile time.
var _ Client = Disabled{}

func (Disabled) Complete(context.Context, string, Params) (string, error) {
	return "", errors.NewIntegrationError("llm", errNotConfigured)
}
