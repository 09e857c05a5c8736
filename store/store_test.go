package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/globalcalls/calls"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	qtest "github.com/teranos/globalcalls/internal/testing"
)

const species = int64(7)

func loadChain(t *testing.T) *Store {
	t.Helper()
	conn := qtest.CreateTestDB(t)
	f := qtest.AncestorChainFixture(species)
	f.Genes = []qtest.Gene{
		{ID: 100, SpeciesID: species, GeneID: "ENSG100"},
		{ID: 101, SpeciesID: species, GeneID: "ENSG101"},
		{ID: 102, SpeciesID: species, GeneID: "ENSG102"}, // no calls
	}
	f.Calls = []qtest.Call{
		{ID: 1, GeneID: 100, ConditionID: 72},
		{ID: 2, GeneID: 100, ConditionID: 73},
		{ID: 3, GeneID: 101, ConditionID: 71},
	}
	f.Evidence = []qtest.Evidence{
		{CallID: 1, DataType: "rna_seq", ExperimentID: "SRP2", Direction: "present", Quality: "high"},
		{CallID: 1, DataType: "rna_seq", ExperimentID: "SRP1", Direction: "absent", Quality: "low"},
		{CallID: 2, DataType: "affymetrix", ExperimentID: "GSE1", Direction: "present", Quality: "low"},
		{CallID: 3, DataType: "rna_seq", ExperimentID: "SRP1", Direction: "absent", Quality: "high"},
	}
	qtest.LoadFixture(t, conn, f)
	return NewStore(conn, db.DriverSQLite)
}

func TestRegistry(t *testing.T) {
	s := loadChain(t)
	ctx := context.Background()

	sp, err := s.GetSpecies(ctx, species)
	require.NoError(t, err)
	assert.Equal(t, "species", sp.Name)

	_, err = s.GetSpecies(ctx, 999)
	assert.True(t, errors.IsNotFoundError(err))

	genes, err := s.GeneIDs(ctx, species)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, genes, "genes without calls are not processed")

	conds, err := s.LoadConditions(ctx, species)
	require.NoError(t, err)
	require.Len(t, conds, 3)
	assert.Equal(t, condition.New(species, "C", "adult"), conds[72])

	rels, err := s.LoadOntology(ctx, species)
	require.NoError(t, err)
	assert.Len(t, rels, 4)
	assert.Contains(t, rels, ontologyRelation(condition.AnatEntity, "G", "C"))
}

func TestOpenJoiner(t *testing.T) {
	s := loadChain(t)
	ctx := context.Background()

	j, err := s.OpenJoiner(ctx, []int64{100, 101}, []evidence.DataType{evidence.Affymetrix, evidence.RNASeq})
	require.NoError(t, err)
	defer j.Close()

	g, ok, err := j.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), g.GeneID)
	require.Len(t, g.Calls, 2)
	rna := g.EvidenceFor(1)[evidence.RNASeq]
	require.Len(t, rna, 2)
	assert.Equal(t, "SRP1", rna[0].ExperimentID, "sorted by experiment within a call")
	assert.Equal(t, evidence.Absent, rna[0].Direction)
	assert.Equal(t, evidence.Present, rna[1].Direction)
	assert.Equal(t, evidence.High, rna[1].Quality)
	assert.Len(t, g.EvidenceFor(2)[evidence.Affymetrix], 1)

	g, ok, err = j.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(101), g.GeneID)

	_, ok, err = j.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, j.Close())

	_, err = s.OpenJoiner(ctx, nil, evidence.DataTypes)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestWriteAndCheckNotAggregated(t *testing.T) {
	s := loadChain(t)
	ctx := context.Background()
	params := condition.MustParams(condition.AnatEntity)

	require.NoError(t, s.CheckNotAggregated(ctx, species, params))

	maxCond, err := s.MaxGlobalConditionID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxCond)

	tx, err := s.BeginWrite(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, tx.InsertConditions(ctx, []GlobalCondition{
		{ID: 1, Params: params, Condition: condition.New(species, "A", "").Project(params)},
		{ID: 2, Params: params, Condition: condition.New(species, "C", "").Project(params)},
		{ID: 3, Params: params, Condition: condition.New(species, "G", "").Project(params)},
	}))
	require.NoError(t, tx.InsertRelations(ctx, []Relation{
		{RawConditionID: 72, GlobalConditionID: 2, Origin: calls.OriginSelf},
		{RawConditionID: 72, GlobalConditionID: 1, Origin: calls.OriginDescendant},
	}))
	var summary calls.DataTypeSummary
	summary.DataType = evidence.RNASeq
	summary.Observed = true
	require.NoError(t, tx.InsertCalls(ctx, []CallRecord{
		{ID: 10, GeneID: 100, GlobalConditionID: 2, Data: []calls.DataTypeSummary{summary}},
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	maxCond, err = s.MaxGlobalConditionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxCond)
	maxCall, err := s.MaxGlobalExpressionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), maxCall)

	err = s.CheckNotAggregated(ctx, species, params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyAggregated))
	assert.NotEmpty(t, errors.GetAllHints(err))

	// another combination of the same species is still free
	assert.NoError(t, s.CheckNotAggregated(ctx, species, condition.MustParams(condition.AnatEntity, condition.DevStage)))

	// the same check inside a later write transaction
	tx, err = s.BeginWrite(ctx, 0)
	require.NoError(t, err)
	err = tx.CheckNotAggregated(ctx, species, params)
	assert.True(t, errors.Is(err, ErrAlreadyAggregated), "got %v", err)
	assert.NoError(t, tx.CheckNotAggregated(ctx, species, condition.MustParams(condition.AnatEntity, condition.DevStage)))
	require.NoError(t, tx.Rollback())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, SpeciesStats{
		SpeciesID: species, Name: "species", Genes: 3, RawConditions: 3, RawCalls: 3,
		GlobalConditions: 3, GlobalCalls: 1, Relations: 2,
	}, stats[0])
}

func TestInsertConditionsChunks(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	params := condition.MustParams(condition.AnatEntity, condition.DevStage)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO global_cond (global_condition_id, species_id, cond_params, anat_entity_id, stage_id, sex, strain) VALUES (?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?)")).
		WithArgs(int64(1), species, "anat,stage", "A", "s", "", "", int64(2), species, "anat,stage", "C", "s", "", "").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO global_cond (global_condition_id, species_id, cond_params, anat_entity_id, stage_id, sex, strain) VALUES (?, ?, ?, ?, ?, ?, ?)")).
		WithArgs(int64(3), species, "anat,stage", "G", "s", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewStore(mockDB, db.DriverSQLite)
	tx, err := s.BeginWrite(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, tx.InsertConditions(context.Background(), []GlobalCondition{
		{ID: 1, Params: params, Condition: condition.New(species, "A", "s")},
		{ID: 2, Params: params, Condition: condition.New(species, "C", "s")},
		{ID: 3, Params: params, Condition: condition.New(species, "G", "s")},
	}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCallsFailureRollsBack(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO global_expression (global_expression_id, bgee_gene_id, global_condition_id) VALUES (?, ?, ?)")).
		WithArgs(int64(5), int64(100), int64(2)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := NewStore(mockDB, db.DriverSQLite)
	tx, err := s.BeginWrite(context.Background(), 0)
	require.NoError(t, err)

	err = tx.InsertCalls(context.Background(), []CallRecord{{ID: 5, GeneID: 100, GlobalConditionID: 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert 1 aggregated calls")
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholders(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM global_cond WHERE species_id = $1 AND cond_params = $2")).
		WithArgs(species, "anat").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	s := NewStore(mockDB, db.DriverPostgres)
	require.NoError(t, s.CheckNotAggregated(context.Background(), species, condition.MustParams(condition.AnatEntity)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
