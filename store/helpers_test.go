package store

import (
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/ontology"
)

func ontologyRelation(axis condition.Axis, term, parent string) ontology.Relation {
	return ontology.Relation{Axis: axis, Term: term, Parent: parent}
}
