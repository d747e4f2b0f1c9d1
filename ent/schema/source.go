package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Source holds the schema definition for the Source entity.
// A retrieved web reference attached to a run; created by the searcher,
// enriched (raw_content, summary) by the reader.
type Source struct {
	ent.Schema
}

// Fields of the Source.
func (Source) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.Text("url"),
		field.Text("title").
			Default(""),
		field.Text("raw_content").
			Optional().
			Nillable().
			Comment("Extracted page text, reader-capped at 20k chars"),
		field.Text("summary").
			Optional().
			Nillable().
			Comment("Reader-capped at 900 chars"),
		field.Float("relevance_score").
			Optional().
			Nillable(),
		field.JSON("extra_metadata", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Source.
func (Source) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", ResearchRun.Type).
			Ref("sources").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Source.
func (Source) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id"),
	}
}
