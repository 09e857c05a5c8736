package store

import (
	"context"
	"database/sql"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/ontology"
)

// Species is one row of the species table
type Species struct {
	ID   int64
	Name string
}

// ListSpecies returns every species ordered by id
func (s *Store) ListSpecies(ctx context.Context) ([]Species, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT species_id, name FROM species ORDER BY species_id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list species")
	}
	defer rows.Close()

	var out []Species
	for rows.Next() {
		var sp Species
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan species")
		}
		out = append(out, sp)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate species")
}

// GetSpecies returns one species or an errors.ErrNotFound-marked error
func (s *Store) GetSpecies(ctx context.Context, speciesID int64) (*Species, error) {
	var sp Species
	err := s.db.QueryRowContext(ctx, s.q("SELECT species_id, name FROM species WHERE species_id = ?"), speciesID).
		Scan(&sp.ID, &sp.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("species not found: %d", speciesID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get species")
	}
	return &sp, nil
}

// GeneIDs returns, in ascending order, the genes of a species having at least one raw call
func (s *Store) GeneIDs(ctx context.Context, speciesID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT DISTINCT e.bgee_gene_id
		FROM expression e
		JOIN gene g ON g.bgee_gene_id = e.bgee_gene_id
		WHERE g.species_id = ?
		ORDER BY e.bgee_gene_id`), speciesID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list genes of species %d", speciesID)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan gene id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate genes")
}

// LoadConditions returns the raw conditions of a species indexed by id
func (s *Store) LoadConditions(ctx context.Context, speciesID int64) (map[int64]condition.Condition, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT condition_id, anat_entity_id, stage_id, sex, strain
		FROM cond
		WHERE species_id = ?`), speciesID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load conditions of species %d", speciesID)
	}
	defer rows.Close()

	out := make(map[int64]condition.Condition)
	for rows.Next() {
		var id int64
		c := condition.Condition{SpeciesID: speciesID}
		if err := rows.Scan(&id,
			&c.Values[condition.AnatEntity], &c.Values[condition.DevStage],
			&c.Values[condition.Sex], &c.Values[condition.Strain]); err != nil {
			return nil, errors.Wrap(err, "failed to scan condition")
		}
		out[id] = c
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate conditions")
}

// LoadOntology returns every term relation of a species
func (s *Store) LoadOntology(ctx context.Context, speciesID int64) ([]ontology.Relation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT axis, term_id, parent_term_id
		FROM ontology_relation
		WHERE species_id = ?
		ORDER BY axis, term_id`), speciesID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load ontology of species %d", speciesID)
	}
	defer rows.Close()

	var out []ontology.Relation
	for rows.Next() {
		var (
			axis, term string
			parent     sql.NullString
		)
		if err := rows.Scan(&axis, &term, &parent); err != nil {
			return nil, errors.Wrap(err, "failed to scan ontology relation")
		}
		a, err := condition.ParseAxis(axis)
		if err != nil {
			return nil, errors.Wrapf(err, "ontology relation of term %q", term)
		}
		out = append(out, ontology.Relation{Axis: a, Term: term, Parent: parent.String})
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate ontology relations")
}
