package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ResearchStep holds the schema definition for the ResearchStep entity.
// One execution of a pipeline stage (planner, searcher, reader, synthesizer).
type ResearchStep struct {
	ent.Schema
}

// Fields of the ResearchStep.
func (ResearchStep) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.Int("step_index").
			Comment("0-based commit order within the run"),
		field.Enum("step_type").
			Values("planner", "searcher", "reader", "synthesizer"),
		field.Enum("status").
			Values("pending", "running", "completed", "failed").
			Default("pending"),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.JSON("input", map[string]interface{}{}).
			Optional(),
		field.JSON("output", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ResearchStep.
func (ResearchStep) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", ResearchRun.Type).
			Ref("steps").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ResearchStep.
func (ResearchStep) Indexes() []ent.Index {
	return []ent.Index{
		// Commit order within a run
		index.Fields("run_id", "step_index").
			Unique(),
		// At most one step per stage type; concurrent executes surface as
		// a constraint violation instead of duplicate stages.
		index.Fields("run_id", "step_type").
			Unique(),
	}
}
