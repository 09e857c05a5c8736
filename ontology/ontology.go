// Package ontology serves ancestor and descendant queries over the term
// hierarchies of one species. Each condition axis has its own DAG of direct
// is-a/part-of edges; multi-axis conditions are navigated as the product of
// the per-axis graphs.
package ontology

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
)

// ErrUnknownTerm is returned when a condition references a term absent from
// its species' ontology.
var ErrUnknownTerm = errors.New("term not in ontology")

// Relation is one direct edge. Roots are declared with an empty Parent.
type Relation struct {
	Axis   condition.Axis
	Term   string
	Parent string
}

// Service answers closure queries for conditions of a single species.
type Service interface {
	// Ancestors returns every strictly broader condition over the axes in params.
	Ancestors(ctx context.Context, c condition.Condition, params condition.Params) ([]condition.Condition, error)
	// Descendants returns strictly narrower conditions reachable in at most depth steps.
	Descendants(ctx context.Context, c condition.Condition, params condition.Params, depth int) ([]condition.Condition, error)
}

// axisGraph holds one axis hierarchy, edges pointing from child to parent
type axisGraph struct {
	ids   map[string]int64
	terms []string
	up    *simple.DirectedGraph
}

func newAxisGraph() *axisGraph {
	return &axisGraph{ids: make(map[string]int64), up: simple.NewDirectedGraph()}
}

func (g *axisGraph) node(term string) graph.Node {
	if id, ok := g.ids[term]; ok {
		return simple.Node(id)
	}
	id := int64(len(g.terms))
	g.ids[term] = id
	g.terms = append(g.terms, term)
	n := simple.Node(id)
	g.up.AddNode(n)
	return n
}

// down implements traverse.Graph reversing the direction of edges.
type down struct {
	*simple.DirectedGraph
}

func (g down) From(id int64) graph.Nodes      { return g.DirectedGraph.To(id) }
func (g down) Edge(uid, vid int64) graph.Edge { return g.DirectedGraph.Edge(vid, uid) }

// distances walks from term and returns every reachable term with its
// shortest distance, stopping past maxDepth. maxDepth < 0 means unbounded.
// The start term is included at distance 0.
func (g *axisGraph) distances(t traverse.Graph, term string, maxDepth int) (map[string]int, bool) {
	id, ok := g.ids[term]
	if !ok {
		return nil, false
	}
	out := make(map[string]int)
	var bf traverse.BreadthFirst
	bf.Walk(t, simple.Node(id), func(n graph.Node, d int) bool {
		if maxDepth >= 0 && d > maxDepth {
			return true
		}
		out[g.terms[n.ID()]] = d
		return false
	})
	return out, true
}

// Ontology is the in-process Service for one species
type Ontology struct {
	speciesID int64
	axes      [condition.NumAxes]*axisGraph
}

var _ Service = (*Ontology)(nil)

// New builds the ontology of a species from its direct relations.
// Self-loops are rejected; cycles through several terms are not checked.
func New(speciesID int64, relations []Relation) (*Ontology, error) {
	o := &Ontology{speciesID: speciesID}
	for _, r := range relations {
		if r.Axis < 0 || int(r.Axis) >= condition.NumAxes {
			return nil, errors.NewInvalidRequestError("relation %q has invalid axis %d", r.Term, r.Axis)
		}
		if r.Term == "" {
			return nil, errors.NewInvalidRequestError("relation on axis %s has empty term", r.Axis)
		}
		if r.Term == r.Parent {
			return nil, errors.Newf("term %q on axis %s is its own parent", r.Term, r.Axis)
		}
		g := o.axes[r.Axis]
		if g == nil {
			g = newAxisGraph()
			o.axes[r.Axis] = g
		}
		child := g.node(r.Term)
		if r.Parent == "" {
			continue
		}
		parent := g.node(r.Parent)
		g.up.SetEdge(g.up.NewEdge(child, parent))
	}
	return o, nil
}

// SpeciesID returns the species this ontology belongs to
func (o *Ontology) SpeciesID() int64 { return o.speciesID }

// TermCount returns the number of known terms on an axis
func (o *Ontology) TermCount(a condition.Axis) int {
	if g := o.axes[a]; g != nil {
		return len(g.terms)
	}
	return 0
}

// Ancestors returns the product of reflexive per-axis ancestor sets, minus c itself.
func (o *Ontology) Ancestors(ctx context.Context, c condition.Condition, params condition.Params) ([]condition.Condition, error) {
	perAxis, err := o.closures(ctx, c, params, func(g *axisGraph, term string) (map[string]int, bool) {
		return g.distances(g.up, term, -1)
	})
	if err != nil {
		return nil, err
	}
	return product(c.Project(params), perAxis, -1), nil
}

// Descendants returns conditions reached by at most depth steps, each step
// replacing the value of one axis by a direct child term.
func (o *Ontology) Descendants(ctx context.Context, c condition.Condition, params condition.Params, depth int) ([]condition.Condition, error) {
	if depth <= 0 {
		// still validate the terms so missing graph data is never silently skipped
		if _, err := o.closures(ctx, c, params, func(g *axisGraph, term string) (map[string]int, bool) {
			_, ok := g.ids[term]
			return nil, ok
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	perAxis, err := o.closures(ctx, c, params, func(g *axisGraph, term string) (map[string]int, bool) {
		return g.distances(down{g.up}, term, depth)
	})
	if err != nil {
		return nil, err
	}
	return product(c.Project(params), perAxis, depth), nil
}

type walkFunc func(g *axisGraph, term string) (map[string]int, bool)

func (o *Ontology) closures(ctx context.Context, c condition.Condition, params condition.Params, walk walkFunc) (map[condition.Axis]map[string]int, error) {
	if c.SpeciesID != o.speciesID {
		return nil, errors.Newf("condition %s belongs to species %d, ontology is for species %d", c, c.SpeciesID, o.speciesID)
	}
	out := make(map[condition.Axis]map[string]int, condition.NumAxes)
	for _, a := range params.Axes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		term := c.Value(a)
		g := o.axes[a]
		if g == nil {
			return nil, errors.Wrapf(ErrUnknownTerm, "species %d has no %s ontology (term %q)", o.speciesID, a, term)
		}
		dist, ok := walk(g, term)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTerm, "%s term %q in species %d", a, term, o.speciesID)
		}
		out[a] = dist
	}
	return out, nil
}

// product enumerates combinations of per-axis terms. With budget < 0 every
// combination is kept; otherwise the summed distance must not exceed it.
// The all-zero combination (the condition itself) is excluded.
func product(base condition.Condition, perAxis map[condition.Axis]map[string]int, budget int) []condition.Condition {
	axes := make([]condition.Axis, 0, len(perAxis))
	for a := range perAxis {
		axes = append(axes, a)
	}
	sort.Slice(axes, func(i, j int) bool { return axes[i] < axes[j] })

	var out []condition.Condition
	var rec func(i int, cur condition.Condition, used int)
	rec = func(i int, cur condition.Condition, used int) {
		if i == len(axes) {
			if used > 0 {
				out = append(out, cur)
			}
			return
		}
		a := axes[i]
		for term, d := range perAxis[a] {
			if budget >= 0 && used+d > budget {
				continue
			}
			rec(i+1, cur.With(a, term), used+d)
		}
	}
	rec(0, base, 0)

	condition.Sort(out)
	return out
}
