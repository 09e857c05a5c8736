package calls

import (
	"sort"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/evidence"
)

// best keeps one record per experiment, the best by evidence.Rank
type best map[string]evidence.ExperimentEvidence

func (b best) offer(e evidence.ExperimentEvidence) {
	if cur, ok := b[e.ExperimentID]; !ok || e.Better(cur) {
		b[e.ExperimentID] = e
	}
}

func (b best) counts() Counts {
	var c Counts
	for _, e := range b {
		c.add(e)
	}
	return c
}

// buckets accumulates one data type at one condition
type buckets struct {
	tiers [3]best
	all   best
}

func newBuckets() *buckets {
	return &buckets{tiers: [3]best{{}, {}, {}}, all: best{}}
}

// target accumulates everything landing on one condition
type target struct {
	cond    condition.Condition
	data    map[evidence.DataType]*buckets
	sources map[Source]struct{}
}

// Reconcile merges one gene's contributions into aggregated calls, one per
// condition that retains evidence. Calls come back sorted by condition; IDs
// are left zero.
func Reconcile(geneID int64, contributions []Contribution) []AggregatedCall {
	targets := make(map[condition.Condition]*target)
	for _, c := range contributions {
		t := targets[c.Target]
		if t == nil {
			t = &target{cond: c.Target, data: make(map[evidence.DataType]*buckets), sources: make(map[Source]struct{})}
			targets[c.Target] = t
		}

		kept := false
		for dt, records := range c.Evidence {
			for _, e := range records {
				if !c.Tier.Accepts(e.Direction) {
					continue
				}
				b := t.data[dt]
				if b == nil {
					b = newBuckets()
					t.data[dt] = b
				}
				b.tiers[c.Tier].offer(e)
				b.all.offer(e)
				kept = true
			}
		}
		if kept {
			t.sources[Source{RawConditionID: c.RawConditionID, Origin: OriginOf(c.Tier)}] = struct{}{}
		}
	}

	out := make([]AggregatedCall, 0, len(targets))
	for _, t := range targets {
		call, ok := t.summarize(geneID)
		if ok {
			out = append(out, call)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Condition.Key() < out[j].Condition.Key() })
	return out
}

func (t *target) summarize(geneID int64) (AggregatedCall, bool) {
	call := AggregatedCall{GeneID: geneID, Condition: t.cond}
	for _, dt := range evidence.DataTypes {
		b := t.data[dt]
		if b == nil || len(b.all) == 0 {
			continue
		}
		self := b.tiers[TierSelf]
		s := DataTypeSummary{
			DataType:   dt,
			Self:       self.counts(),
			Ancestor:   b.tiers[TierAncestor].counts(),
			Descendant: b.tiers[TierDescendant].counts(),
			All:        b.all.counts(),
			Observed:   len(self) > 0,
		}
		for exp, e := range b.all {
			if own, ok := self[exp]; !ok || e.Better(own) {
				s.PropagatedOnly++
			}
		}
		call.Data = append(call.Data, s)
	}
	if len(call.Data) == 0 {
		return AggregatedCall{}, false
	}

	call.Sources = make([]Source, 0, len(t.sources))
	for src := range t.sources {
		call.Sources = append(call.Sources, src)
	}
	sort.Slice(call.Sources, func(i, j int) bool {
		a, b := call.Sources[i], call.Sources[j]
		if a.RawConditionID != b.RawConditionID {
			return a.RawConditionID < b.RawConditionID
		}
		return a.Origin < b.Origin
	})
	return call, true
}
