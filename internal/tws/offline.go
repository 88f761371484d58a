package tws

import (
	"context"
	stderrors "errors"

	"github.com/resync-ops/resync/internal/errors"
)

var errNotConnected = stderrors.New("no tws endpoint configured")

// Offline is the client wired when no TWS endpoint is configured.
// Available always reports false, so the knowledge graph answers with
// empty results instead of failing; direct calls return an integration
// error.
type Offline struct{}

// Verify interface implementation at compile time.
var _ Client = Offline{}

func (Offline) JobStatus(context.Context, string) (*Job, error) {
	return nil, errors.NewIntegrationError("tws", errNotConnected)
}

func (Offline) WorkstationStatus(context.Context, string) (*Workstation, error) {
	return nil, errors.NewIntegrationError("tws", errNotConnected)
}

func (Offline) PlanSnapshot(context.Context) (*PlanSnapshot, error) {
	return nil, errors.NewIntegrationError("tws", errNotConnected)
}

func (Offline) Available(context.Context) bool { return false }

func (Offline) RerunJob(context.Context, string) error {
	return errors.NewIntegrationError("tws", errNotConnected)
}

func (Offline) KillJob(context.Context, string) error {
	return errors.NewIntegrationError("tws", errNotConnected)
}

func (Offline) ReleaseJob(context.Context, string) error {
	return errors.NewIntegrationError("tws", errNotConnected)
}
