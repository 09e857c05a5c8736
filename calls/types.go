// Package calls turns one gene's merge-joined raw calls into aggregated
// ("global") calls: evidence is propagated along the condition graph with a
// tier tag, then reconciled per condition with per-experiment deduplication.
package calls

import (
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
)

// Tier names where evidence was observed relative to the target condition
type Tier uint8

const (
	// TierSelf evidence was observed at the target condition
	TierSelf Tier = iota
	// TierAncestor evidence was observed in a broader condition; only absence counts
	TierAncestor
	// TierDescendant evidence was observed in a narrower condition; only presence counts
	TierDescendant
)

func (t Tier) String() string {
	switch t {
	case TierSelf:
		return "self"
	case TierAncestor:
		return "ancestor"
	case TierDescendant:
		return "descendant"
	}
	return "unknown"
}

// Accepts reports whether evidence of direction d is kept in this tier
func (t Tier) Accepts(d evidence.Direction) bool {
	switch t {
	case TierAncestor:
		return d == evidence.Absent
	case TierDescendant:
		return d == evidence.Present
	}
	return true
}

// Origin tags a condition relation: how a raw condition relates to the
// aggregated condition it contributed to.
type Origin uint8

const (
	OriginSelf Origin = iota
	OriginParent
	OriginDescendant
)

func (o Origin) String() string {
	switch o {
	case OriginSelf:
		return "self"
	case OriginParent:
		return "parent"
	case OriginDescendant:
		return "descendant"
	}
	return "unknown"
}

// ParseOrigin accepts the stored form of an origin
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "self":
		return OriginSelf, nil
	case "parent":
		return OriginParent, nil
	case "descendant":
		return OriginDescendant, nil
	}
	return 0, errors.Newf("unknown condition origin %q", s)
}

// OriginOf maps a propagation tier to the relation origin of the raw condition
func OriginOf(t Tier) Origin {
	switch t {
	case TierAncestor:
		return OriginParent
	case TierDescendant:
		return OriginDescendant
	}
	return OriginSelf
}

// Counts is an experiment count matrix indexed by direction then quality
type Counts [2][2]int

func (c *Counts) add(e evidence.ExperimentEvidence) { c[e.Direction][e.Quality]++ }

// Get returns the count for one direction and quality
func (c Counts) Get(d evidence.Direction, q evidence.Quality) int { return c[d][q] }

// Total sums every cell
func (c Counts) Total() int { return c[0][0] + c[0][1] + c[1][0] + c[1][1] }

// DataTypeSummary is the reconciled evidence of one data type at one condition
type DataTypeSummary struct {
	DataType evidence.DataType
	Self     Counts
	// Ancestor holds only absent cells, Descendant only present cells
	Ancestor   Counts
	Descendant Counts
	All        Counts
	// PropagatedOnly counts experiments of All without an equal-or-better Self record
	PropagatedOnly int
	Observed       bool
}

// Source is one raw condition that contributed to an aggregated call
type Source struct {
	RawConditionID int64
	Origin         Origin
}

// AggregatedCall is the reconciled summary of one gene at one condition.
// ID is assigned by the pipeline before the call is enqueued.
type AggregatedCall struct {
	ID        int64
	GeneID    int64
	Condition condition.Condition
	Data      []DataTypeSummary
	Sources   []Source
}

// Observed reports whether any data type has evidence at the condition itself
func (c AggregatedCall) Observed() bool {
	for _, d := range c.Data {
		if d.Observed {
			return true
		}
	}
	return false
}

// Contribution is one raw call's evidence landing on a target condition
type Contribution struct {
	Target         condition.Condition
	Tier           Tier
	CallID         int64
	RawConditionID int64
	Evidence       map[evidence.DataType][]evidence.ExperimentEvidence
}
