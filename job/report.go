package job

import (
	"time"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/pipeline"
)

// CombinationReport is the outcome of one axis-combination within a species
type CombinationReport struct {
	Params condition.Params
	pipeline.Result
}

// SpeciesReport is the outcome of one species job
type SpeciesReport struct {
	SpeciesID    int64
	Outcome      State // StateCommit or StateRollback
	Err          error
	Genes        int
	Combinations []CombinationReport
	Duration     time.Duration
}

// Committed reports whether the species' data was persisted
func (r SpeciesReport) Committed() bool { return r.Outcome == StateCommit && r.Err == nil }

// Totals sums the combinations of the species
func (r SpeciesReport) Totals() pipeline.Result {
	var t pipeline.Result
	for _, c := range r.Combinations {
		t.Genes += c.Genes
		t.Batches += c.Batches
		t.Units += c.Units
		t.Conditions += c.Conditions
		t.Relations += c.Relations
		t.Calls += c.Calls
		t.Duration += c.Duration
	}
	return t
}

// Report is the outcome of a job over several species
type Report struct {
	JobID    string
	Species  []SpeciesReport
	Duration time.Duration
}

// Failed returns the species that were rolled back
func (r *Report) Failed() []SpeciesReport {
	var out []SpeciesReport
	for _, s := range r.Species {
		if !s.Committed() {
			out = append(out, s)
		}
	}
	return out
}

// Err combines the errors of every failed species, nil if all committed
func (r *Report) Err() error {
	var err error
	for _, s := range r.Failed() {
		err = errors.CombineErrors(err, errors.Wrapf(s.Err, "species %d", s.SpeciesID))
	}
	return err
}
