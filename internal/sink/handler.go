package sink

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

// registryStagePayload mirrors the shape the Registry Adapter encodes as
// its stage payload (see internal/adapters/registry.stageResult); decoded
// independently here to avoid an import cycle between sink and adapters.
type registryStagePayload struct {
	Company    *models.CompanyRecord
	Directors  []models.DirectorRecord
	Ineligible bool
}

// GraphHandler implements orchestrator.StageHandler for the Graph stage:
// it reads the company record the Registry stage produced and publishes
// it to the Graph Sink, per spec.md §4.6's "if stage == Graph: emit
// payload to Graph Sink".
type GraphHandler struct {
	store *sqlite.JobStore
	sink  Sink
	log   arbor.ILogger
}

// NewGraphHandler builds the Graph stage's sink-publishing handler.
func NewGraphHandler(store *sqlite.JobStore, sink Sink, logger arbor.ILogger) *GraphHandler {
	return &GraphHandler{store: store, sink: sink, log: logger}
}

func (h *GraphHandler) Stage() models.Stage {
	return models.StageGraph
}

func (h *GraphHandler) Process(ctx context.Context, job models.Job) ([]byte, error) {
	registryPayload, err := h.store.GetStagePayload(ctx, job.OrgNr, models.StageRegistry)
	if err != nil {
		return nil, fmt.Errorf("graph handler: read registry payload: %w", err)
	}

	var decoded registryStagePayload
	if err := models.DecodePayload(registryPayload, &decoded); err != nil {
		return nil, fmt.Errorf("graph handler: decode registry payload: %w", err)
	}

	if decoded.Ineligible || decoded.Company == nil {
		h.log.Debug().Str("org_nr", job.OrgNr.String()).Msg("Graph handler: no company record to emit, passing through")
		payload, err := models.EncodePayload(models.StageGraph, decoded)
		if err != nil {
			return nil, err
		}
		return payload.Payload, nil
	}

	decoded.Company.SourceStage = models.StageGraph
	if err := h.sink.Publish(ctx, *decoded.Company); err != nil {
		return nil, fmt.Errorf("graph handler: publish to sink: %w", err)
	}

	h.log.Info().Str("org_nr", job.OrgNr.String()).Int("directors", len(decoded.Directors)).Msg("Graph handler: emitted company record")

	payload, err := models.EncodePayload(models.StageGraph, decoded)
	if err != nil {
		return nil, err
	}
	return payload.Payload, nil
}
