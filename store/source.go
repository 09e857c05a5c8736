package store

import (
	"context"
	"database/sql"

	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
)

// RawCalls streams the raw calls of the given genes sorted by (gene id, call id)
func (s *Store) RawCalls(ctx context.Context, geneIDs []int64) (evidence.Cursor[evidence.RawCall], error) {
	in, args := inClause(geneIDs)
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT expression_id, bgee_gene_id, condition_id
		FROM expression
		WHERE bgee_gene_id IN `+in+`
		ORDER BY bgee_gene_id, expression_id`), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query raw calls")
	}
	return evidence.NewRowsCursor(rows, scanRawCall), nil
}

func scanRawCall(rows *sql.Rows) (evidence.RawCall, error) {
	var rc evidence.RawCall
	err := rows.Scan(&rc.ID, &rc.GeneID, &rc.ConditionID)
	return rc, err
}

// Evidence streams one data type's experiment evidence for the given genes,
// sorted like RawCalls
func (s *Store) Evidence(ctx context.Context, dataType evidence.DataType, geneIDs []int64) (evidence.Cursor[evidence.ExperimentEvidence], error) {
	in, args := inClause(geneIDs)
	args = append([]interface{}{string(dataType)}, args...)
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT e.bgee_gene_id, x.expression_id, x.experiment_id, x.direction, x.quality
		FROM experiment_expression x
		JOIN expression e ON e.expression_id = x.expression_id
		WHERE x.data_type = ? AND e.bgee_gene_id IN `+in+`
		ORDER BY e.bgee_gene_id, x.expression_id, x.experiment_id`), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s evidence", dataType)
	}
	return evidence.NewRowsCursor(rows, func(rows *sql.Rows) (evidence.ExperimentEvidence, error) {
		ev := evidence.ExperimentEvidence{DataType: dataType}
		var direction, quality string
		if err := rows.Scan(&ev.GeneID, &ev.CallID, &ev.ExperimentID, &direction, &quality); err != nil {
			return ev, err
		}
		var err error
		if ev.Direction, err = evidence.ParseDirection(direction); err != nil {
			return ev, err
		}
		ev.Quality, err = evidence.ParseQuality(quality)
		return ev, err
	}), nil
}

// OpenJoiner opens the raw-call stream and one evidence stream per data type
// for a gene batch. The caller must Close the joiner; on error every stream
// already opened is released here.
func (s *Store) OpenJoiner(ctx context.Context, geneIDs []int64, dataTypes []evidence.DataType) (*evidence.Joiner, error) {
	if len(geneIDs) == 0 {
		return nil, errors.NewInvalidRequestError("empty gene batch")
	}
	primary, err := s.RawCalls(ctx, geneIDs)
	if err != nil {
		return nil, err
	}
	secondaries := make(map[evidence.DataType]evidence.Cursor[evidence.ExperimentEvidence], len(dataTypes))
	for _, dt := range dataTypes {
		cur, err := s.Evidence(ctx, dt, geneIDs)
		if err != nil {
			primary.Close()
			for _, c := range secondaries {
				c.Close()
			}
			return nil, err
		}
		secondaries[dt] = cur
	}
	return evidence.NewJoiner(primary, secondaries), nil
}
