package models

import (
	"time"

	"github.com/inquiryos/inquiryos/ent/researchrun"
	"github.com/inquiryos/inquiryos/ent/researchstep"
)

// StepState is the projected view of one stage type within a run
type StepState struct {
	Status       researchstep.Status `json:"status"`
	StartedAt    *time.Time          `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at"`
	ErrorMessage *string             `json:"error_message"`
}

// RunStateResponse is a per-run snapshot derived from persisted rows: one
// status per stage type (pending when no step exists) plus source counters.
type RunStateResponse struct {
	RunID              string                              `json:"run_id"`
	Status             researchrun.Status                  `json:"status"`
	Steps              map[researchstep.StepType]StepState `json:"steps"`
	SourceCount        int                                 `json:"source_count"`
	SourcesWithSummary int                                 `json:"sources_with_summary"`
}
