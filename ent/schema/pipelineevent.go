package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PipelineEvent holds the schema definition for the PipelineEvent entity.
// Append-only audit log of pipeline executions: each execute call writes
// exactly one started event and one terminal (completed or failed) event.
type PipelineEvent struct {
	ent.Schema
}

// Fields of the PipelineEvent.
func (PipelineEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.Enum("event_type").
			Values("started", "completed", "failed").
			Immutable(),
		field.Enum("mode").
			Values("dummy", "real").
			Immutable(),
		field.String("stage").
			Optional().
			Nillable().
			Immutable().
			Comment("Stage tag on failed events"),
		field.Int("duration_ms").
			Optional().
			Nillable().
			Immutable(),
		field.String("error_message").
			Optional().
			Nillable().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the PipelineEvent.
func (PipelineEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", ResearchRun.Type).
			Ref("events").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the PipelineEvent.
func (PipelineEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "created_at"),
	}
}
