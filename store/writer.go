package store

import (
	"context"
	"database/sql"

	"github.com/teranos/globalcalls/calls"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
)

// ErrAlreadyAggregated is returned when a species already has aggregated
// conditions for an axis-combination. Nothing has been written at that point.
var ErrAlreadyAggregated = errors.New("aggregated conditions already exist")

// DefaultChunkRows bounds the rows of one multi-row INSERT
const DefaultChunkRows = 200

// GlobalCondition is an aggregated condition with its assigned id
type GlobalCondition struct {
	ID     int64
	Params condition.Params
	condition.Condition
}

// Relation links a raw condition to an aggregated one
type Relation struct {
	RawConditionID    int64
	GlobalConditionID int64
	Origin            calls.Origin
}

// CallRecord is an aggregated call resolved to its condition id
type CallRecord struct {
	ID                int64
	GeneID            int64
	GlobalConditionID int64
	Data              []calls.DataTypeSummary
}

// CheckNotAggregated fails with ErrAlreadyAggregated if (species, params)
// already has aggregated conditions.
func (s *Store) CheckNotAggregated(ctx context.Context, speciesID int64, params condition.Params) error {
	return checkNotAggregated(ctx, s.db, s.driver, speciesID, params)
}

func checkNotAggregated(ctx context.Context, q Querier, driver string, speciesID int64, params condition.Params) error {
	var count int
	err := q.QueryRowContext(ctx,
		db.Rebind(driver, "SELECT COUNT(*) FROM global_cond WHERE species_id = ? AND cond_params = ?"),
		speciesID, params.String()).Scan(&count)
	if err != nil {
		return errors.Wrap(err, "failed to check existing aggregated conditions")
	}
	if count > 0 {
		err := errors.Wrapf(ErrAlreadyAggregated, "species %d has %d aggregated conditions for %s", speciesID, count, params)
		return errors.WithHint(err, "delete the previous aggregation of this species and condition parameters before running again")
	}
	return nil
}

// Tx is the writer's transaction. It is not safe for concurrent use; the
// pipeline gives it to exactly one goroutine.
type Tx struct {
	tx     *sql.Tx
	driver string
	chunk  int
}

// BeginWrite starts the transaction that receives a species' aggregated data.
// chunkRows bounds multi-row INSERT statements; values < 1 use DefaultChunkRows.
func (s *Store) BeginWrite(ctx context.Context, chunkRows int) (*Tx, error) {
	if chunkRows < 1 {
		chunkRows = DefaultChunkRows
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin write transaction")
	}
	return &Tx{tx: tx, driver: s.driver, chunk: chunkRows}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return errors.Wrap(t.tx.Commit(), "failed to commit")
}

// Rollback aborts the transaction. Rolling back an already finished
// transaction is not an error.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return errors.Wrap(err, "failed to roll back")
}

// CheckNotAggregated repeats the store check inside the transaction, so a
// run that committed after the precheck is still refused before any insert.
func (t *Tx) CheckNotAggregated(ctx context.Context, speciesID int64, params condition.Params) error {
	return checkNotAggregated(ctx, t.tx, t.driver, speciesID, params)
}

// insertRows runs INSERT prefix VALUES (...), (...) in chunks
func (t *Tx) insertRows(ctx context.Context, prefix string, cols int, rows [][]interface{}) error {
	for start := 0; start < len(rows); start += t.chunk {
		end := start + t.chunk
		if end > len(rows) {
			end = len(rows)
		}
		args := make([]interface{}, 0, (end-start)*cols)
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}
		query := db.Rebind(t.driver, prefix+" VALUES "+db.Placeholders(end-start, cols))
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// InsertConditions inserts aggregated conditions
func (t *Tx) InsertConditions(ctx context.Context, conds []GlobalCondition) error {
	rows := make([][]interface{}, len(conds))
	for i, c := range conds {
		rows[i] = []interface{}{
			c.ID, c.SpeciesID, c.Params.String(),
			c.Value(condition.AnatEntity), c.Value(condition.DevStage),
			c.Value(condition.Sex), c.Value(condition.Strain),
		}
	}
	err := t.insertRows(ctx,
		"INSERT INTO global_cond (global_condition_id, species_id, cond_params, anat_entity_id, stage_id, sex, strain)",
		7, rows)
	return errors.Wrapf(err, "failed to insert %d aggregated conditions", len(conds))
}

// InsertRelations inserts condition relations; callers pass each relation once
func (t *Tx) InsertRelations(ctx context.Context, relations []Relation) error {
	rows := make([][]interface{}, len(relations))
	for i, r := range relations {
		rows[i] = []interface{}{r.RawConditionID, r.GlobalConditionID, r.Origin.String()}
	}
	err := t.insertRows(ctx,
		"INSERT INTO global_cond_to_cond (condition_id, global_condition_id, cond_origin)",
		3, rows)
	return errors.Wrapf(err, "failed to insert %d condition relations", len(relations))
}

// InsertCalls inserts aggregated calls and their per-data-type counts
func (t *Tx) InsertCalls(ctx context.Context, records []CallRecord) error {
	callRows := make([][]interface{}, len(records))
	var dataRows [][]interface{}
	for i, r := range records {
		callRows[i] = []interface{}{r.ID, r.GeneID, r.GlobalConditionID}
		for _, d := range r.Data {
			dataRows = append(dataRows, dataRow(r.ID, d))
		}
	}
	if err := t.insertRows(ctx,
		"INSERT INTO global_expression (global_expression_id, bgee_gene_id, global_condition_id)",
		3, callRows); err != nil {
		return errors.Wrapf(err, "failed to insert %d aggregated calls", len(records))
	}
	if err := t.insertRows(ctx,
		"INSERT INTO global_expression_data (global_expression_id, data_type, "+
			"self_present_high, self_present_low, self_absent_high, self_absent_low, "+
			"anc_absent_high, anc_absent_low, desc_present_high, desc_present_low, "+
			"all_present_high, all_present_low, all_absent_high, all_absent_low, "+
			"propagated_count, observed)",
		16, dataRows); err != nil {
		return errors.Wrapf(err, "failed to insert %d aggregated call data rows", len(dataRows))
	}
	return nil
}

func dataRow(id int64, d calls.DataTypeSummary) []interface{} {
	const (
		p, a = evidence.Present, evidence.Absent
		h, l = evidence.High, evidence.Low
	)
	observed := 0
	if d.Observed {
		observed = 1
	}
	return []interface{}{
		id, string(d.DataType),
		d.Self.Get(p, h), d.Self.Get(p, l), d.Self.Get(a, h), d.Self.Get(a, l),
		d.Ancestor.Get(a, h), d.Ancestor.Get(a, l),
		d.Descendant.Get(p, h), d.Descendant.Get(p, l),
		d.All.Get(p, h), d.All.Get(p, l), d.All.Get(a, h), d.All.Get(a, l),
		d.PropagatedOnly, observed,
	}
}
