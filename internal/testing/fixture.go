package testing

import (
	"database/sql"
	"testing"
)

// Species row
type Species struct {
	ID   int64
	Name string
}

// Gene row
type Gene struct {
	ID        int64
	SpeciesID int64
	GeneID    string
}

// Relation row; empty Parent declares a root
type Relation struct {
	SpeciesID int64
	Axis      string
	Term      string
	Parent    string
}

// Condition row
type Condition struct {
	ID        int64
	SpeciesID int64
	Anat      string
	Stage     string
	Sex       string
	Strain    string
}

// Call row
type Call struct {
	ID          int64
	GeneID      int64
	ConditionID int64
}

// Evidence row
type Evidence struct {
	CallID       int64
	DataType     string
	ExperimentID string
	Direction    string
	Quality      string
}

// Fixture is raw data to load into a test database
type Fixture struct {
	Species    []Species
	Genes      []Gene
	Relations  []Relation
	Conditions []Condition
	Calls      []Call
	Evidence   []Evidence
}

// LoadFixture inserts f in dependency order, failing the test on error
func LoadFixture(t *testing.T, conn *sql.DB, f Fixture) {
	t.Helper()

	exec := func(query string, args ...interface{}) {
		t.Helper()
		if _, err := conn.Exec(query, args...); err != nil {
			t.Fatalf("Failed to load fixture (%s): %v", query, err)
		}
	}

	for _, s := range f.Species {
		exec("INSERT INTO species (species_id, name) VALUES (?, ?)", s.ID, s.Name)
	}
	for _, g := range f.Genes {
		exec("INSERT INTO gene (bgee_gene_id, species_id, gene_id) VALUES (?, ?, ?)", g.ID, g.SpeciesID, g.GeneID)
	}
	for _, r := range f.Relations {
		parent := sql.NullString{String: r.Parent, Valid: r.Parent != ""}
		exec("INSERT INTO ontology_relation (species_id, axis, term_id, parent_term_id) VALUES (?, ?, ?, ?)",
			r.SpeciesID, r.Axis, r.Term, parent)
	}
	for _, c := range f.Conditions {
		exec("INSERT INTO cond (condition_id, species_id, anat_entity_id, stage_id, sex, strain) VALUES (?, ?, ?, ?, ?, ?)",
			c.ID, c.SpeciesID, c.Anat, c.Stage, c.Sex, c.Strain)
	}
	for _, c := range f.Calls {
		exec("INSERT INTO expression (expression_id, bgee_gene_id, condition_id) VALUES (?, ?, ?)", c.ID, c.GeneID, c.ConditionID)
	}
	for _, e := range f.Evidence {
		exec("INSERT INTO experiment_expression (expression_id, data_type, experiment_id, direction, quality) VALUES (?, ?, ?, ?, ?)",
			e.CallID, e.DataType, e.ExperimentID, e.Direction, e.Quality)
	}
}

// AncestorChainFixture builds one species whose anatomy is A <- C <- G at a
// single stage, with raw conditions 1=A, 2=C, 3=G (ids offset by 10*speciesID
// so several species can share a database) and no calls.
func AncestorChainFixture(speciesID int64) Fixture {
	base := speciesID * 10
	return Fixture{
		Species: []Species{{ID: speciesID, Name: "species"}},
		Relations: []Relation{
			{SpeciesID: speciesID, Axis: "anat", Term: "A"},
			{SpeciesID: speciesID, Axis: "anat", Term: "C", Parent: "A"},
			{SpeciesID: speciesID, Axis: "anat", Term: "G", Parent: "C"},
			{SpeciesID: speciesID, Axis: "stage", Term: "adult"},
		},
		Conditions: []Condition{
			{ID: base + 1, SpeciesID: speciesID, Anat: "A", Stage: "adult"},
			{ID: base + 2, SpeciesID: speciesID, Anat: "C", Stage: "adult"},
			{ID: base + 3, SpeciesID: speciesID, Anat: "G", Stage: "adult"},
		},
	}
}
