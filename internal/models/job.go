package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage is a pipeline stage a Job moves through, in a fixed order.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageRegistry  Stage = "registry"
	StageGraph     Stage = "graph"
	StageScraped   Stage = "scraped"
)

// StageOrder is the fixed pipeline order every Job advances through.
var StageOrder = []Stage{StageDiscovery, StageRegistry, StageGraph, StageScraped}

// NextStage returns the stage after the given one, and false if it was the
// last stage in the pipeline.
func NextStage(s Stage) (Stage, bool) {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

// Status is the lifecycle state of a Job at its current stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusSkipped    Status = "skipped"
)

// Job is one organisation number's position in the pipeline.
type Job struct {
	OrgNr         OrgNumber
	Stage         Stage
	Status        Status
	Priority      int
	Attempts      int
	LastAttempt   *time.Time
	Error         string
	CoolDownUntil *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StagePayload is the opaque JSON blob a stage writes for the next stage
// (and for export) to consume.
type StagePayload struct {
	Stage     Stage
	Payload   json.RawMessage
	WrittenAt time.Time
}

// EncodePayload marshals v into a StagePayload for the given stage.
func EncodePayload(stage Stage, v any) (StagePayload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return StagePayload{}, fmt.Errorf("encode stage payload for %s: %w", stage, err)
	}
	return StagePayload{Stage: stage, Payload: data}, nil
}

// DecodePayload unmarshals a stage payload into v.
func DecodePayload(p StagePayload, v any) error {
	if len(p.Payload) == 0 {
		return fmt.Errorf("decode stage payload for %s: empty payload", p.Stage)
	}
	if err := json.Unmarshal(p.Payload, v); err != nil {
		return fmt.Errorf("decode stage payload for %s: %w", p.Stage, err)
	}
	return nil
}
