package store

import (
	"context"

	"github.com/teranos/globalcalls/errors"
)

// SpeciesStats counts raw and aggregated rows of one species
type SpeciesStats struct {
	SpeciesID        int64  `json:"species_id"`
	Name             string `json:"name"`
	Genes            int    `json:"genes"`
	RawConditions    int    `json:"raw_conditions"`
	RawCalls         int    `json:"raw_calls"`
	GlobalConditions int    `json:"global_conditions"`
	GlobalCalls      int    `json:"global_calls"`
	Relations        int    `json:"relations"`
}

// Stats returns row counts for every species
func (s *Store) Stats(ctx context.Context) ([]SpeciesStats, error) {
	species, err := s.ListSpecies(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SpeciesStats, 0, len(species))
	for _, sp := range species {
		st := SpeciesStats{SpeciesID: sp.ID, Name: sp.Name}
		counts := []struct {
			dst   *int
			query string
		}{
			{&st.Genes, "SELECT COUNT(*) FROM gene WHERE species_id = ?"},
			{&st.RawConditions, "SELECT COUNT(*) FROM cond WHERE species_id = ?"},
			{&st.RawCalls, `SELECT COUNT(*) FROM expression e JOIN gene g ON g.bgee_gene_id = e.bgee_gene_id WHERE g.species_id = ?`},
			{&st.GlobalConditions, "SELECT COUNT(*) FROM global_cond WHERE species_id = ?"},
			{&st.GlobalCalls, `SELECT COUNT(*) FROM global_expression ge JOIN global_cond gc ON gc.global_condition_id = ge.global_condition_id WHERE gc.species_id = ?`},
			{&st.Relations, `SELECT COUNT(*) FROM global_cond_to_cond r JOIN global_cond gc ON gc.global_condition_id = r.global_condition_id WHERE gc.species_id = ?`},
		}
		for _, c := range counts {
			if err := s.db.QueryRowContext(ctx, s.q(c.query), sp.ID).Scan(c.dst); err != nil {
				return nil, errors.Wrapf(err, "failed to count rows of species %d", sp.ID)
			}
		}
		out = append(out, st)
	}
	return out, nil
}
