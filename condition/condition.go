// Package condition models expression conditions: value combinations over
// ontology axes, scoped to a species, and the axis-combinations (Params)
// that define condition identity for an aggregation run.
package condition

import (
	"sort"
	"strings"

	"github.com/teranos/globalcalls/errors"
)

// Axis is one dimension of a condition
type Axis int

const (
	AnatEntity Axis = iota
	DevStage
	Sex
	Strain

	NumAxes = 4
)

var axisNames = [NumAxes]string{"anat", "stage", "sex", "strain"}

// Axes lists every axis in canonical order
var Axes = [NumAxes]Axis{AnatEntity, DevStage, Sex, Strain}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return "unknown"
	}
	return axisNames[a]
}

// ParseAxis accepts the short names used in Params strings and the ontology_relation table
func ParseAxis(s string) (Axis, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range axisNames {
		if name == s {
			return Axis(i), nil
		}
	}
	return 0, errors.NewInvalidRequestError("unknown condition axis %q", s)
}

// Params is the set of axes considered for condition identity
type Params uint8

// ParseParams parses a comma-separated axis list such as "anat,stage"
func ParseParams(s string) (Params, error) {
	var p Params
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		a, err := ParseAxis(part)
		if err != nil {
			return 0, err
		}
		p = p.With(a)
	}
	if p == 0 {
		return 0, errors.NewInvalidRequestError("condition parameters %q select no axis", s)
	}
	return p, nil
}

// MustParams builds Params from axes, for tests and defaults
func MustParams(axes ...Axis) Params {
	var p Params
	for _, a := range axes {
		p = p.With(a)
	}
	return p
}

func (p Params) With(a Axis) Params { return p | 1<<uint(a) }

func (p Params) Has(a Axis) bool { return p&(1<<uint(a)) != 0 }

// Axes returns the selected axes in canonical order
func (p Params) Axes() []Axis {
	var out []Axis
	for _, a := range Axes {
		if p.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// String renders the canonical form stored in global_cond.cond_params
func (p Params) String() string {
	names := make([]string, 0, NumAxes)
	for _, a := range p.Axes() {
		names = append(names, a.String())
	}
	return strings.Join(names, ",")
}

// Condition is a value combination over axes, scoped to one species.
// Axes outside the aggregation Params hold the empty string.
type Condition struct {
	SpeciesID int64
	Values    [NumAxes]string
}

// New builds a condition from anatomy and stage, the two axes every species has
func New(speciesID int64, anatEntity, devStage string) Condition {
	c := Condition{SpeciesID: speciesID}
	c.Values[AnatEntity] = anatEntity
	c.Values[DevStage] = devStage
	return c
}

// Value returns the term on axis a
func (c Condition) Value(a Axis) string { return c.Values[a] }

// With returns a copy with axis a set to term
func (c Condition) With(a Axis, term string) Condition {
	c.Values[a] = term
	return c
}

// Project keeps only the axes in params. Two raw conditions that differ only
// on dropped axes project onto the same aggregated condition.
func (c Condition) Project(params Params) Condition {
	out := Condition{SpeciesID: c.SpeciesID}
	for _, a := range params.Axes() {
		out.Values[a] = c.Values[a]
	}
	return out
}

// Key is a comparable identity; Condition itself is comparable too, Key is
// for logs and deterministic ordering.
func (c Condition) Key() string {
	var b strings.Builder
	for i, v := range c.Values {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(v)
	}
	return b.String()
}

func (c Condition) String() string {
	parts := make([]string, 0, NumAxes)
	for _, a := range Axes {
		if v := c.Values[a]; v != "" {
			parts = append(parts, a.String()+"="+v)
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Sort orders conditions by key, for stable output in tests and inserts
func Sort(conds []Condition) {
	sort.Slice(conds, func(i, j int) bool { return conds[i].Key() < conds[j].Key() })
}

// Raw is a persisted raw condition with its database id
type Raw struct {
	ID int64
	Condition
}
