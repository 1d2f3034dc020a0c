// Package core provides the fundamental building blocks of the golem ORM.
// This file defines aggregation pipelines and the *Aggregate[T] receiver bound
// to aggregate hooks.
package core

import "fmt"

// StageKind names a pipeline stage.
type StageKind string

const (
	StageMatch   StageKind = "$match"
	StageSort    StageKind = "$sort"
	StageSkip    StageKind = "$skip"
	StageLimit   StageKind = "$limit"
	StageProject StageKind = "$project"
	StageCount   StageKind = "$count"
)

// Stage is one step of a Pipeline. Only the fields relevant to Kind are set.
type Stage struct {
	Kind   StageKind
	Match  *Condition // $match
	Sort   []Sort     // $sort
	N      int        // $skip, $limit
	Fields []string   // $project
	As     string     // $count output field
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Match filters documents.
func Match(condition *Condition) Stage {
	return Stage{Kind: StageMatch, Match: condition}
}

// SortBy orders documents.
func SortBy(sortList ...Sort) Stage {
	return Stage{Kind: StageSort, Sort: sortList}
}

// Skip drops the first n documents.
func Skip(n int) Stage {
	return Stage{Kind: StageSkip, N: n}
}

// LimitTo keeps the first n documents.
func LimitTo(n int) Stage {
	return Stage{Kind: StageLimit, N: n}
}

// Project keeps only the listed fields.
func Project(fields ...string) Stage {
	return Stage{Kind: StageProject, Fields: fields}
}

// CountAs replaces the stream with a single document {as: <count>}.
func CountAs(as string) Stage {
	return Stage{Kind: StageCount, As: as}
}

// Validate checks that every stage carries what its kind needs.
func (p Pipeline) Validate() error {
	for i, stage := range p {
		switch stage.Kind {
		case StageMatch, StageSort, StageProject:
		case StageSkip, StageLimit:
			if stage.N < 0 {
				return fmt.Errorf("golem: pipeline stage %d (%s): negative value %d", i, stage.Kind, stage.N)
			}
		case StageCount:
			if stage.As == "" {
				return fmt.Errorf("golem: pipeline stage %d ($count): empty output field", i)
			}
		default:
			return fmt.Errorf("golem: pipeline stage %d: unknown kind %q", i, stage.Kind)
		}
	}
	return nil
}

// Aggregate is the execution context of an aggregation. Pre hooks receive it
// and may reshape the pipeline before it runs.
type Aggregate[T any] struct {
	schema   *SchemaMeta[T]
	pipeline Pipeline
}

func newAggregate[T any](schema *SchemaMeta[T], pipeline Pipeline) *Aggregate[T] {
	return &Aggregate[T]{schema: schema, pipeline: append(Pipeline(nil), pipeline...)}
}

// Pipeline returns the stages that will run.
func (a *Aggregate[T]) Pipeline() Pipeline {
	return a.pipeline
}

// Append adds stages at the end of the pipeline.
func (a *Aggregate[T]) Append(stages ...Stage) *Aggregate[T] {
	a.pipeline = append(a.pipeline, stages...)
	return a
}

// Prepend adds stages at the start of the pipeline.
func (a *Aggregate[T]) Prepend(stages ...Stage) *Aggregate[T] {
	a.pipeline = append(append(Pipeline(nil), stages...), a.pipeline...)
	return a
}
