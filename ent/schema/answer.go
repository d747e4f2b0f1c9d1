package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Answer holds the schema definition for the Answer entity.
// At most one per run; synthesized prose plus a citation map of
// "[n]" markers to source IDs.
type Answer struct {
	ent.Schema
}

// Fields of the Answer.
func (Answer) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("run_id").
			Unique().
			Immutable(),
		field.Text("content"),
		field.JSON("citations", map[string][]string{}).
			Optional().
			Comment("Citation index (\"1\", \"2\", ...) -> source IDs"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Answer.
func (Answer) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", ResearchRun.Type).
			Ref("answer").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}
