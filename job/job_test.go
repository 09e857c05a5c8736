package job

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/globalcalls/calls"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	"github.com/teranos/globalcalls/graph"
	qtest "github.com/teranos/globalcalls/internal/testing"
	"github.com/teranos/globalcalls/pipeline"
	"github.com/teranos/globalcalls/store"
)

var anat = condition.MustParams(condition.AnatEntity)

var testConfig = Config{
	Pipeline:        pipeline.Config{Workers: 2, BatchSize: 1, QueueCapacity: 1},
	DescendantDepth: 1,
}

// chainWithCalls adds to the A <- C <- G fixture of speciesID one gene per
// direction, each with a single high-quality rna_seq experiment at C
func chainWithCalls(speciesID int64, directions ...string) qtest.Fixture {
	f := qtest.AncestorChainFixture(speciesID)
	for i, dir := range directions {
		geneID := speciesID*100 + int64(i)
		f.Genes = append(f.Genes, qtest.Gene{ID: geneID, SpeciesID: speciesID, GeneID: "ENSG"})
		f.Calls = append(f.Calls, qtest.Call{ID: geneID, GeneID: geneID, ConditionID: speciesID*10 + 2})
		f.Evidence = append(f.Evidence, qtest.Evidence{
			CallID: geneID, DataType: "rna_seq", ExperimentID: "E1", Direction: dir, Quality: "high",
		})
	}
	return f
}

func load(t *testing.T, fixtures ...qtest.Fixture) (*sql.DB, *Runner, *[]string) {
	t.Helper()
	conn := qtest.CreateTestDB(t)
	for _, f := range fixtures {
		qtest.LoadFixture(t, conn, f)
	}
	r := NewRunner(store.NewStore(conn, db.DriverSQLite), testConfig, zaptest.NewLogger(t).Sugar())
	var transitions []string
	r.OnTransition = func(speciesID int64, from, to State) {
		transitions = append(transitions, to.String())
	}
	return conn, r, &transitions
}

func TestRunCommitsSpecies(t *testing.T) {
	conn, r, transitions := load(t, chainWithCalls(1, "present", "absent"))

	report, err := r.Run(context.Background(), Request{SpeciesIDs: []int64{1}, Params: []condition.Params{anat}})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.NotEmpty(t, report.JobID)

	require.Len(t, report.Species, 1)
	sr := report.Species[0]
	assert.True(t, sr.Committed())
	assert.Equal(t, 2, sr.Genes)
	assert.Equal(t,
		[]string{"load_conditions", "build_graph", "process", "commit", "done"},
		*transitions)

	// present gene: C and A; absent gene: C and G
	totals := sr.Totals()
	assert.Equal(t, int64(4), totals.Calls)
	assert.Equal(t, int64(3), totals.Conditions, "C is shared between the genes")
	assert.Equal(t, 3, qtest.CountRows(t, conn, "global_cond"))
	assert.Equal(t, 4, qtest.CountRows(t, conn, "global_expression"))
	assert.Equal(t, 4, qtest.CountRows(t, conn, "global_expression_data"))
}

func TestRunSeveralCombinationsShareTheTransaction(t *testing.T) {
	conn, r, _ := load(t, chainWithCalls(1, "present"))
	stage := condition.MustParams(condition.DevStage)
	both := condition.MustParams(condition.AnatEntity, condition.DevStage)

	report, err := r.Run(context.Background(), Request{
		SpeciesIDs: []int64{1},
		Params:     []condition.Params{anat, stage, both},
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Species[0].Combinations, 3)

	var ids []int64
	rows, err := conn.Query("SELECT global_condition_id FROM global_cond ORDER BY global_condition_id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	// anat: C, A; stage: adult; anat,stage: C/adult, A/adult
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids, "ids stay unique across combinations")
}

func TestRunRollsBackOnWorkerErrorAndIsolatesSpecies(t *testing.T) {
	bad := chainWithCalls(1, "present", "present", "present")
	// the last gene's call points at a condition of species 2
	bad.Calls[2].ConditionID = 22
	good := chainWithCalls(2, "absent")

	// species 2 must exist before species 1's foreign-keyed call is loaded
	conn, r, transitions := load(t, good, bad)

	report, err := r.Run(context.Background(), Request{SpeciesIDs: []int64{1, 2}, Params: []condition.Params{anat}})
	require.NoError(t, err)
	require.Len(t, report.Species, 2)

	failed := report.Species[0]
	assert.Equal(t, StateRollback, failed.Outcome)
	assert.False(t, failed.Committed())
	assert.True(t, errors.Is(failed.Err, calls.ErrUnknownCondition), "got %v", failed.Err)

	assert.True(t, report.Species[1].Committed(), "one species failing must not affect the next")
	require.Len(t, report.Failed(), 1)
	assert.Error(t, report.Err())

	assert.Equal(t, []string{
		"load_conditions", "build_graph", "process", "rollback", "done",
		"load_conditions", "build_graph", "process", "commit", "done",
	}, *transitions)

	var species1Rows int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM global_cond WHERE species_id = 1").Scan(&species1Rows))
	assert.Zero(t, species1Rows, "nothing of the failed species is persisted")
	assert.Equal(t, 0, countCallsOfSpecies(t, conn, 1))
	assert.Equal(t, 2, countCallsOfSpecies(t, conn, 2), "C and G")
}

func countCallsOfSpecies(t *testing.T, conn *sql.DB, speciesID int64) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`
		SELECT COUNT(*) FROM global_expression ge
		JOIN gene g ON g.bgee_gene_id = ge.bgee_gene_id
		WHERE g.species_id = ?`, speciesID).Scan(&n))
	return n
}

func TestRunRefusesAlreadyAggregatedSpecies(t *testing.T) {
	conn, r, transitions := load(t, chainWithCalls(1, "present"))
	req := Request{SpeciesIDs: []int64{1}, Params: []condition.Params{anat}}

	report, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	before := qtest.CountRows(t, conn, "global_expression")

	*transitions = nil
	report, err = r.Run(context.Background(), req)
	require.NoError(t, err)
	sr := report.Species[0]
	assert.Equal(t, StateRollback, sr.Outcome)
	assert.True(t, errors.Is(sr.Err, store.ErrAlreadyAggregated))
	assert.Equal(t, []string{"rollback", "done"}, *transitions, "aborts before any state that mutates")
	assert.Equal(t, before, qtest.CountRows(t, conn, "global_expression"))
}

func TestRunMissingGraphData(t *testing.T) {
	f := chainWithCalls(1, "present")
	f.Conditions = append(f.Conditions, qtest.Condition{ID: 19, SpeciesID: 1, Anat: "unknown", Stage: "adult"})
	conn, r, transitions := load(t, f)

	report, err := r.Run(context.Background(), Request{SpeciesIDs: []int64{1}, Params: []condition.Params{anat}})
	require.NoError(t, err)
	sr := report.Species[0]
	assert.True(t, errors.Is(sr.Err, graph.ErrMissingGraphData), "got %v", sr.Err)
	assert.Equal(t, []string{"load_conditions", "build_graph", "rollback", "done"}, *transitions)
	assert.Equal(t, 0, qtest.CountRows(t, conn, "global_cond"))
}

func TestRunUnknownSpecies(t *testing.T) {
	_, r, _ := load(t)

	report, err := r.Run(context.Background(), Request{SpeciesIDs: []int64{42}, Params: []condition.Params{anat}})
	require.NoError(t, err)
	assert.True(t, errors.IsNotFoundError(report.Species[0].Err))
}

func TestRunInvalidRequest(t *testing.T) {
	_, r, _ := load(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"no species", Request{Params: []condition.Params{anat}}},
		{"no combination", Request{SpeciesIDs: []int64{1}}},
		{"empty combination", Request{SpeciesIDs: []int64{1}, Params: []condition.Params{0}}},
		{"duplicate combination", Request{SpeciesIDs: []int64{1}, Params: []condition.Params{anat, anat}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.req)
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}
}

func TestRunCancelledContextRollsBack(t *testing.T) {
	conn, r, _ := load(t, chainWithCalls(1, "present", "absent"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, Request{SpeciesIDs: []int64{1}, Params: []condition.Params{anat}})
	require.NoError(t, err)
	assert.Equal(t, StateRollback, report.Species[0].Outcome)
	assert.True(t, errors.Is(report.Species[0].Err, context.Canceled), "got %v", report.Species[0].Err)
	assert.Equal(t, 0, qtest.CountRows(t, conn, "global_cond"))
}

// expectSpeciesReads queues the reads of species 1 up to the write transaction
func expectSpeciesReads(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT species_id, name FROM species").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"species_id", "name"}).AddRow(1, "species"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM global_cond`).
		WithArgs(int64(1), "anat").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM cond").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"condition_id", "anat_entity_id", "stage_id", "sex", "strain"}).
			AddRow(12, "C", "adult", "", ""))
	mock.ExpectQuery("SELECT DISTINCT e.bgee_gene_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"bgee_gene_id"}).AddRow(100))
	mock.ExpectQuery("FROM ontology_relation").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"axis", "term_id", "parent_term_id"}).
			AddRow("anat", "A", nil).
			AddRow("anat", "C", "A"))
	mock.ExpectQuery(`SELECT MAX\(global_condition_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectQuery(`SELECT MAX\(global_expression_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
}

func runMocked(t *testing.T, mockDB *sql.DB) SpeciesReport {
	cfg := Config{Pipeline: pipeline.Config{Workers: 1, BatchSize: 10, QueueCapacity: 1}}
	r := NewRunner(store.NewStore(mockDB, db.DriverSQLite), cfg, zaptest.NewLogger(t).Sugar())

	report, err := r.Run(context.Background(), Request{
		SpeciesIDs: []int64{1},
		Params:     []condition.Params{anat},
		DataTypes:  []evidence.DataType{evidence.RNASeq},
	})
	require.NoError(t, err)
	require.Len(t, report.Species, 1)
	return report.Species[0]
}

func TestWriterFailureRollsBackTransaction(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	expectSpeciesReads(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM global_cond`).
		WithArgs(int64(1), "anat").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM expression").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"expression_id", "bgee_gene_id", "condition_id"}).AddRow(1, 100, 12))
	mock.ExpectQuery("FROM experiment_expression").
		WithArgs("rna_seq", int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"bgee_gene_id", "expression_id", "experiment_id", "direction", "quality"}).
			AddRow(100, 1, "E1", "present", "high"))
	mock.ExpectExec("INSERT INTO global_cond ").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	sr := runMocked(t, mockDB)
	assert.Equal(t, StateRollback, sr.Outcome)
	require.Error(t, sr.Err)
	assert.Contains(t, sr.Err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet(), "rolled back, never committed")
}

func TestAggregationCommittedAfterPrecheckIsRefusedInTransaction(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	// another run commits between the precheck and our transaction
	expectSpeciesReads(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM global_cond`).
		WithArgs(int64(1), "anat").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	sr := runMocked(t, mockDB)
	assert.Equal(t, StateRollback, sr.Outcome)
	assert.True(t, errors.Is(sr.Err, store.ErrAlreadyAggregated), "got %v", sr.Err)
	assert.Empty(t, sr.Combinations, "no pipeline may run")
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing inserted, never committed")
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateInit, StateLoadConditions))
	assert.True(t, canTransition(StateProcess, StateRollback))
	assert.True(t, canTransition(StateCommit, StateDone))
	assert.False(t, canTransition(StateInit, StateCommit), "cannot commit before processing")
	assert.False(t, canTransition(StateRollback, StateCommit))
	assert.False(t, canTransition(StateDone, StateInit))
	assert.True(t, StateRollback.Terminal())
	assert.False(t, StateProcess.Terminal())
	assert.Equal(t, "unknown", State(99).String())
}
