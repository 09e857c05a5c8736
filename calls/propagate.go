package calls

import (
	"context"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	"github.com/teranos/globalcalls/graph"
)

// ErrUnknownCondition is raised for a raw call whose condition was not loaded
var ErrUnknownCondition = errors.New("raw call references unknown condition")

// ClosureSource resolves the neighbourhood of a projected condition.
// *graph.Cache implements it.
type ClosureSource interface {
	Params() condition.Params
	Get(ctx context.Context, c condition.Condition) (*graph.Closure, error)
}

// Propagator expands a gene's raw calls to every condition their evidence
// reaches under one axis-combination.
type Propagator struct {
	closures   ClosureSource
	conditions map[int64]condition.Condition
}

// NewPropagator creates a propagator. conditions indexes the species' raw
// conditions by id; it is read-only and shared between workers.
func NewPropagator(closures ClosureSource, conditions map[int64]condition.Condition) *Propagator {
	return &Propagator{closures: closures, conditions: conditions}
}

// Propagate returns, for every raw call of the group, a SELF contribution at
// its projected condition, a DESCENDANT-tier contribution at each ancestor
// and an ANCESTOR-tier contribution at each bounded descendant. Evidence is
// forwarded untouched; direction filtering happens in Reconcile.
func (p *Propagator) Propagate(ctx context.Context, group *evidence.Group) ([]Contribution, error) {
	params := p.closures.Params()
	var out []Contribution
	for _, call := range group.Calls {
		raw, ok := p.conditions[call.ConditionID]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownCondition, "gene %d, call %d, condition %d",
				call.GeneID, call.ID, call.ConditionID)
		}
		ev := group.EvidenceFor(call.ID)
		target := raw.Project(params)

		closure, err := p.closures.Get(ctx, target)
		if err != nil {
			return nil, errors.WithDetailf(err, "gene %d, call %d", call.GeneID, call.ID)
		}

		base := Contribution{CallID: call.ID, RawConditionID: call.ConditionID, Evidence: ev}

		self := base
		self.Target, self.Tier = target, TierSelf
		out = append(out, self)

		for _, anc := range closure.Ancestors {
			c := base
			c.Target, c.Tier = anc, TierDescendant
			out = append(out, c)
		}
		for _, desc := range closure.Descendants {
			c := base
			c.Target, c.Tier = desc, TierAncestor
			out = append(out, c)
		}
	}
	return out, nil
}
