package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/globalcalls/am"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	qtest "github.com/teranos/globalcalls/internal/testing"
	"github.com/teranos/globalcalls/job"
	"github.com/teranos/globalcalls/pipeline"
	"github.com/teranos/globalcalls/store"
)

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest([]int64{9606}, []string{"anat,stage", "anat"}, "rna_seq,est")
	require.NoError(t, err)
	assert.Equal(t, []int64{9606}, req.SpeciesIDs)
	assert.Equal(t, []condition.Params{
		condition.MustParams(condition.AnatEntity, condition.DevStage),
		condition.MustParams(condition.AnatEntity),
	}, req.Params)
	assert.Equal(t, []evidence.DataType{evidence.RNASeq, evidence.EST}, req.DataTypes)

	req, err = buildRequest([]int64{1}, []string{"anat"}, "")
	require.NoError(t, err)
	assert.Equal(t, evidence.DataTypes, req.DataTypes)

	_, err = buildRequest([]int64{1}, []string{"tissue"}, "")
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = buildRequest([]int64{1}, []string{"anat"}, "microarray")
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = buildRequest(nil, []string{"anat"}, "")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestJobConfig(t *testing.T) {
	cfg := &am.Config{Pipeline: am.PipelineConfig{Workers: 3, DescendantDepth: 2}}

	got := jobConfig(cfg, 0, 0, -1)
	assert.Equal(t, 3, got.Pipeline.Workers)
	assert.Equal(t, am.DefaultBatchSize, got.Pipeline.BatchSize)
	assert.Equal(t, 2, got.DescendantDepth)
	assert.Equal(t, am.DefaultInsertChunkRows, got.InsertChunkRows)

	got = jobConfig(cfg, 8, 50, 0)
	assert.Equal(t, 8, got.Pipeline.Workers)
	assert.Equal(t, 50, got.Pipeline.BatchSize)
	assert.Equal(t, 0, got.DescendantDepth, "an explicit zero disables downward propagation")
}

func TestRenderConfigNeverPrintsDSN(t *testing.T) {
	cfg := &am.Config{Database: am.DatabaseConfig{Driver: am.DriverPostgres, DSN: "postgres://user:secret@db/bgee"}}

	for _, format := range []string{"toml", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			out, err := renderConfig(cfg, format)
			require.NoError(t, err)
			assert.Contains(t, string(out), "pgx")
			assert.NotContains(t, string(out), "secret")
		})
	}

	_, err := renderConfig(cfg, "xml")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestPrintReport(t *testing.T) {
	report := &job.Report{
		JobID: "job-1",
		Species: []job.SpeciesReport{
			{
				SpeciesID: 9606, Outcome: job.StateCommit, Genes: 12,
				Combinations: []job.CombinationReport{{
					Params: condition.MustParams(condition.AnatEntity),
					Result: pipeline.Result{Conditions: 4, Relations: 6, Calls: 20, Duration: time.Second},
				}},
			},
			{SpeciesID: 10090, Outcome: job.StateRollback, Err: errors.New("boom\nstack")},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "9606")
	assert.Contains(t, out, "anat")
	assert.Contains(t, out, "rollback")
	assert.Contains(t, out, "species 10090: boom")
	assert.NotContains(t, out, "stack", "only the first line of an error is shown")
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bgee.db")

	conn, err := db.OpenWithMigrations(db.DriverSQLite, dbPath, nil)
	require.NoError(t, err)
	defer conn.Close()

	f := qtest.AncestorChainFixture(1)
	f.Genes = []qtest.Gene{{ID: 100, SpeciesID: 1, GeneID: "ENSG100"}}
	f.Calls = []qtest.Call{{ID: 1, GeneID: 100, ConditionID: 12}}
	f.Evidence = []qtest.Evidence{{CallID: 1, DataType: "rna_seq", ExperimentID: "SRP1", Direction: "present", Quality: "high"}}
	qtest.LoadFixture(t, conn, f)

	cfgPath := filepath.Join(dir, "am.toml")
	content := "[database]\npath = \"" + filepath.ToSlash(dbPath) + "\"\n\n[pipeline]\nworkers = 1\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), am.DefaultFilePermissions))

	root := &cobra.Command{Use: "globalcalls", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(RunCmd)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--config", cfgPath, "--species", "1", "--params", "anat"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.Contains(out.String(), "commit"), out.String())

	stats, err := store.NewStore(conn, db.DriverSQLite).Stats(t.Context())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].GlobalConditions, "C and its ancestor A")
	assert.Equal(t, 2, stats[0].GlobalCalls)
}
