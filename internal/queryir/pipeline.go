package queryir

// Stage is one step of an aggregation pipeline.
//
// This is a sealed interface. Stages are applied in order; the SQL
// backend supports at most one GroupStage, and Match stages that follow
// a GroupStage are rejected by ValidatePipeline.
type Stage interface {
	stageNode()
}

// Pipeline is an ordered list of aggregation stages.
type Pipeline []Stage

// MatchStage filters input rows.
type MatchStage struct {
	Filter Predicate
}

func (MatchStage) stageNode() {}

// GroupStage groups rows by a field.
//
// Output rows have the shape {"_id": <key>, <CountAs>: n, <sum alias>: total}.
// An empty By groups everything into a single row with a null key.
type GroupStage struct {
	By      string
	CountAs string            // output name for the row count ("" = omit)
	Sums    map[string]string // output name -> summed integer field
}

func (GroupStage) stageNode() {}

// SortStage orders rows.
type SortStage struct {
	Keys []SortKey
}

func (SortStage) stageNode() {}

// SkipStage drops the first N rows.
type SkipStage struct {
	N int
}

func (SkipStage) stageNode() {}

// LimitStage keeps at most N rows.
type LimitStage struct {
	N int
}

func (LimitStage) stageNode() {}

// Prepend returns a new pipeline that starts with a match on filter.
// A nil filter returns the pipeline unchanged.
func (p Pipeline) Prepend(filter Predicate) Pipeline {
	if filter == nil {
		return p
	}
	out := make(Pipeline, 0, len(p)+1)
	out = append(out, MatchStage{Filter: filter})
	out = append(out, p...)
	return out
}
