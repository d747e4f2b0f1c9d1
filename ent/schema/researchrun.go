package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ResearchRun holds the schema definition for the ResearchRun entity.
// Root aggregate: one user-initiated research task owning its steps,
// sources, answer, and pipeline events.
type ResearchRun struct {
	ent.Schema
}

// Fields of the ResearchRun.
func (ResearchRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.Text("query").
			Comment("User's natural-language research question"),
		field.String("title").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "running", "completed", "failed").
			Default("pending"),
		field.String("model_provider").
			Default("ollama:llama3").
			Comment("'<provider>:<model>' label captured at creation"),
		field.String("error_message").
			Optional().
			Nillable().
			Comment("Set when a pipeline execution fails"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the ResearchRun.
func (ResearchRun) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("steps", ResearchStep.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("sources", Source.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("answer", Answer.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("events", PipelineEvent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ResearchRun.
func (ResearchRun) Indexes() []ent.Index {
	return []ent.Index{
		// Newest-first listing
		index.Fields("created_at"),
	}
}
