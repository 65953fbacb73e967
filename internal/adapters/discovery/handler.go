package discovery

import (
	"context"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// Handler satisfies orchestrator.StageHandler for the Discovery stage.
// A job reaches this stage already knowing its orgnr (either seeded
// directly via the CLI's seed command, or inserted by a bulk discovery
// sweep that already called the Adapter's CountAvailable/FetchPage
// itself) — so there is nothing left to fetch here. Process just
// confirms the shape and advances the job to Registry.
type Handler struct{}

// NewHandler builds the Discovery stage's no-op completion handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Stage() models.Stage {
	return models.StageDiscovery
}

func (h *Handler) Process(ctx context.Context, job models.Job) ([]byte, error) {
	payload, err := models.EncodePayload(models.StageDiscovery, struct {
		OrgNr models.OrgNumber `json:"org_nr"`
	}{OrgNr: job.OrgNr})
	if err != nil {
		return nil, err
	}
	return payload.Payload, nil
}
