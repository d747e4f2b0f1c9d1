package models

import (
	"github.com/inquiryos/inquiryos/ent"
)

// CreateRunInput contains fields for creating a new research run
type CreateRunInput struct {
	Query string
	Title string
}

// RunListResponse contains a paginated run list, newest first
type RunListResponse struct {
	Runs       []*ent.ResearchRun `json:"runs"`
	TotalCount int                `json:"total_count"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// RunDetailResponse is the full view of a run: the run itself plus steps in
// step_index order, sources in insertion order, the answer (if synthesized),
// and the pipeline event log.
type RunDetailResponse struct {
	*ent.ResearchRun
	Steps   []*ent.ResearchStep  `json:"steps"`
	Sources []*ent.Source        `json:"sources"`
	Answer  *ent.Answer          `json:"answer,omitempty"`
	Events  []*ent.PipelineEvent `json:"events"`
}
