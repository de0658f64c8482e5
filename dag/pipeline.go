package dag

import (
	"fmt"

	"github.com/kbukum/crossmatch/validation"
)

// Item arguments a stage source can bind to.
const (
	ArgASINs = "asins"
	ArgSKUs  = "skus"
	ArgWmIDs = "wm_ids"
)

// Pipeline is a named, composable graph definition.
type Pipeline struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description,omitempty"`
	Includes    []string   `yaml:"includes,omitempty"`
	Stages      []StageDef `yaml:"stages" validate:"dive"`
}

// StageDef declares one stage of a pipeline.
type StageDef struct {
	Op        string     `yaml:"op" validate:"required"`
	DependsOn []string   `yaml:"depends_on,omitempty"`
	Source    SourceSpec `yaml:"source"`
	MinBatch  int        `yaml:"min_batch,omitempty" validate:"gte=0"`
	MaxBatch  int        `yaml:"max_batch,omitempty" validate:"gte=0"`
}

// SourceSpec names where a stage's items come from. Exactly one field is set:
//
//	source: {query: stale_competitive_pricing}
//	source: {items: [B00X4WHP5E]}
//	source: {items_arg: asins}
type SourceSpec struct {
	Query    string   `yaml:"query,omitempty"`
	Items    []string `yaml:"items,omitempty"`
	ItemsArg string   `yaml:"items_arg,omitempty" validate:"omitempty,oneof=asins skus wm_ids"`
}

// QuerySource is shorthand for a query-backed source.
func QuerySource(name string) SourceSpec { return SourceSpec{Query: name} }

// ArgSource is shorthand for a source bound to a run argument.
func ArgSource(arg string) SourceSpec { return SourceSpec{ItemsArg: arg} }

// Fixed reports whether the source is a static list.
func (s SourceSpec) Fixed() bool {
	return s.Query == ""
}

// Validate checks that exactly one kind of source is declared.
func (s SourceSpec) Validate() error {
	set := 0
	if s.Query != "" {
		set++
	}
	if len(s.Items) > 0 {
		set++
	}
	if s.ItemsArg != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("source must set exactly one of query, items or items_arg")
	}
	return nil
}

// Validate checks the pipeline's own stages. Included pipelines are checked
// when they are resolved.
func (p *Pipeline) Validate() error {
	if err := validation.ValidateStruct(p); err != nil {
		return err
	}
	for _, s := range p.Stages {
		if err := s.Source.Validate(); err != nil {
			return fmt.Errorf("dag: pipeline %q stage %q: %w", p.Name, s.Op, err)
		}
		if s.MaxBatch > 0 && s.MinBatch > s.MaxBatch {
			return fmt.Errorf("dag: pipeline %q stage %q: min_batch %d above max_batch %d", p.Name, s.Op, s.MinBatch, s.MaxBatch)
		}
	}
	return nil
}
