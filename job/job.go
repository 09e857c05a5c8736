// Package job runs aggregation jobs: for each requested species it builds the
// condition graph, runs one insertion pipeline per axis-combination inside a
// single transaction, and commits or rolls back the species as a whole.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/globalcalls/calls"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	"github.com/teranos/globalcalls/graph"
	"github.com/teranos/globalcalls/logger"
	"github.com/teranos/globalcalls/ontology"
	"github.com/teranos/globalcalls/pipeline"
	"github.com/teranos/globalcalls/store"
)

// Store is the relational backend of a job. *store.Store implements it.
type Store interface {
	pipeline.Source
	GetSpecies(ctx context.Context, speciesID int64) (*store.Species, error)
	GeneIDs(ctx context.Context, speciesID int64) ([]int64, error)
	LoadConditions(ctx context.Context, speciesID int64) (map[int64]condition.Condition, error)
	LoadOntology(ctx context.Context, speciesID int64) ([]ontology.Relation, error)
	CheckNotAggregated(ctx context.Context, speciesID int64, params condition.Params) error
	MaxGlobalConditionID(ctx context.Context) (int64, error)
	MaxGlobalExpressionID(ctx context.Context) (int64, error)
	BeginWrite(ctx context.Context, chunkRows int) (*store.Tx, error)
}

var _ Store = (*store.Store)(nil)

// Request selects what a job aggregates
type Request struct {
	SpeciesIDs []int64
	Params     []condition.Params
	DataTypes  []evidence.DataType // empty means every data type
}

// Validate rejects requests that cannot produce any work
func (r Request) Validate() error {
	if len(r.SpeciesIDs) == 0 {
		return errors.NewInvalidRequestError("at least one species id is required")
	}
	if len(r.Params) == 0 {
		return errors.NewInvalidRequestError("at least one axis-combination is required")
	}
	seen := make(map[condition.Params]bool, len(r.Params))
	for _, p := range r.Params {
		if p == 0 {
			return errors.NewInvalidRequestError("axis-combination cannot be empty")
		}
		if seen[p] {
			return errors.NewInvalidRequestError("axis-combination %s requested twice", p)
		}
		seen[p] = true
	}
	return nil
}

// Config sizes the work of every species
type Config struct {
	Pipeline        pipeline.Config
	DescendantDepth int
	InsertChunkRows int
}

// Runner executes jobs against a store
type Runner struct {
	store  Store
	cfg    Config
	logger *zap.SugaredLogger

	// OnTransition, when set, observes every state change of a species job
	OnTransition func(speciesID int64, from, to State)
}

// NewRunner creates a runner. A nil logger disables logging.
func NewRunner(s Store, cfg Config, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{store: s, cfg: cfg, logger: log.Named("job")}
}

// Run aggregates every requested species in order. Species are isolated: a
// failure rolls back that species only and the next one still runs. The
// returned error covers invalid requests; per-species failures are in the
// report (see Report.Err).
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report := &Report{JobID: uuid.NewString()}
	ctx = logger.WithJobID(ctx, report.JobID)
	log := logger.LoggerFromContext(ctx, r.logger)

	cfg := r.cfg
	cfg.Pipeline.DataTypes = req.DataTypes
	if len(cfg.Pipeline.DataTypes) == 0 {
		cfg.Pipeline.DataTypes = evidence.DataTypes
	}
	if warning := pipeline.CheckMemoryPressure(cfg.Pipeline.Workers, cfg.Pipeline.BatchSize); warning != "" {
		log.Warnw(warning, logger.FieldWorkers, cfg.Pipeline.Workers)
	}

	log.Infow("Job started",
		logger.FieldCount, len(req.SpeciesIDs),
		logger.FieldCondParams, paramsString(req.Params),
	)
	start := time.Now()
	for _, speciesID := range req.SpeciesIDs {
		sj := &speciesJob{
			runner:    r,
			cfg:       cfg,
			speciesID: speciesID,
			params:    req.Params,
			logger:    log.Named("species").With(logger.FieldSpeciesID, speciesID),
		}
		sr := sj.run(ctx)
		JobsCompleted.WithLabelValues(sr.Outcome.String()).Inc()
		report.Species = append(report.Species, sr)
	}
	report.Duration = time.Since(start)

	log.Infow("Job finished",
		logger.FieldCount, len(report.Species),
		"failed", len(report.Failed()),
		logger.FieldDurationMS, report.Duration.Milliseconds(),
	)
	return report, nil
}

func paramsString(params []condition.Params) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.String()
	}
	return out
}

// speciesJob walks one species through the state machine
type speciesJob struct {
	runner    *Runner
	cfg       Config
	speciesID int64
	params    []condition.Params
	logger    *zap.SugaredLogger

	state      State
	genes      []int64
	conditions map[int64]condition.Condition
	caches     []*graph.Cache
	report     SpeciesReport
}

func (j *speciesJob) transition(to State) {
	if !canTransition(j.state, to) {
		// a programming error, never a data error
		panic(errors.AssertionFailedf("illegal transition %s -> %s", j.state, to))
	}
	j.logger.Debugw("State transition", logger.FieldState, to.String(), "from", j.state.String())
	if j.runner.OnTransition != nil {
		j.runner.OnTransition(j.speciesID, j.state, to)
	}
	j.state = to
}

func (j *speciesJob) run(ctx context.Context) SpeciesReport {
	start := time.Now()
	j.state = StateInit
	j.report = SpeciesReport{SpeciesID: j.speciesID}

	err := j.execute(ctx)
	if err != nil {
		j.transition(StateRollback)
		j.report.Outcome = StateRollback
		j.report.Err = errors.WithDetailf(err, "species %d", j.speciesID)
		j.logger.Errorw("Species rolled back",
			logger.FieldError, err,
			logger.FieldState, j.report.Outcome.String(),
		)
	} else {
		j.report.Outcome = StateCommit
	}
	j.transition(StateDone)
	j.report.Duration = time.Since(start)

	if err == nil {
		t := j.report.Totals()
		j.logger.Infow("Species committed",
			logger.FieldGeneCount, j.report.Genes,
			logger.FieldConditions, t.Conditions,
			logger.FieldRelations, t.Relations,
			logger.FieldCalls, t.Calls,
			logger.FieldDurationMS, j.report.Duration.Milliseconds(),
		)
	}
	return j.report
}

// execute runs every non-terminal state; a returned error means rollback
func (j *speciesJob) execute(ctx context.Context) error {
	st := j.runner.store

	// INIT: the species exists and nothing was aggregated for it yet. The
	// aggregated check is repeated inside the write transaction.
	if _, err := st.GetSpecies(ctx, j.speciesID); err != nil {
		return err
	}
	for _, p := range j.params {
		if err := st.CheckNotAggregated(ctx, j.speciesID, p); err != nil {
			return err
		}
	}

	j.transition(StateLoadConditions)
	if err := j.loadConditions(ctx); err != nil {
		return err
	}

	j.transition(StateBuildGraph)
	if err := j.buildGraph(ctx); err != nil {
		return err
	}

	j.transition(StateProcess)
	tx, err := j.process(ctx)
	if err != nil {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.WithSecondaryError(err, rbErr)
			}
		}
		return err
	}

	j.transition(StateCommit)
	if err := tx.Commit(); err != nil {
		// a failed commit leaves nothing behind; Rollback tolerates the finished tx
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.WithSecondaryError(err, rbErr)
		}
		return err
	}
	return nil
}

func (j *speciesJob) loadConditions(ctx context.Context) error {
	st := j.runner.store
	conds, err := st.LoadConditions(ctx, j.speciesID)
	if err != nil {
		return err
	}
	genes, err := st.GeneIDs(ctx, j.speciesID)
	if err != nil {
		return err
	}
	j.conditions = conds
	j.genes = genes
	j.report.Genes = len(genes)
	j.logger.Debugw("Conditions loaded",
		logger.FieldConditions, len(conds),
		logger.FieldGeneCount, len(genes),
	)
	return nil
}

func (j *speciesJob) buildGraph(ctx context.Context) error {
	relations, err := j.runner.store.LoadOntology(ctx, j.speciesID)
	if err != nil {
		return err
	}
	onto, err := ontology.New(j.speciesID, relations)
	if err != nil {
		return errors.Mark(err, graph.ErrMissingGraphData)
	}

	workers := j.cfg.Pipeline.Workers
	if workers < 1 {
		workers = pipeline.DefaultConfig().Workers
	}
	for _, p := range j.params {
		cache := graph.NewCache(onto, p, j.cfg.DescendantDepth, j.logger)
		if err := cache.WarmUp(ctx, projected(j.conditions, p), workers); err != nil {
			return err
		}
		j.caches = append(j.caches, cache)
	}
	return nil
}

// projected returns the distinct projections of raw conditions onto params
func projected(conds map[int64]condition.Condition, params condition.Params) []condition.Condition {
	seen := make(map[condition.Condition]bool, len(conds))
	var out []condition.Condition
	for _, c := range conds {
		p := c.Project(params)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	condition.Sort(out)
	return out
}

// process opens the species transaction and runs one pipeline per
// combination through it. The transaction is returned even on failure so
// the caller can roll it back.
func (j *speciesJob) process(ctx context.Context) (*store.Tx, error) {
	st := j.runner.store

	maxCond, err := st.MaxGlobalConditionID(ctx)
	if err != nil {
		return nil, err
	}
	maxCall, err := st.MaxGlobalExpressionID(ctx)
	if err != nil {
		return nil, err
	}
	conditionIDs := pipeline.NewCounter(maxCond)
	callIDs := pipeline.NewCounter(maxCall)

	tx, err := st.BeginWrite(ctx, j.cfg.InsertChunkRows)
	if err != nil {
		return nil, err
	}
	for _, p := range j.params {
		if err := tx.CheckNotAggregated(ctx, j.speciesID, p); err != nil {
			return tx, err
		}
	}

	for i, p := range j.params {
		pl := pipeline.New(pipeline.Options{
			SpeciesID:    j.speciesID,
			Params:       p,
			Source:       st,
			Sink:         tx,
			Propagator:   calls.NewPropagator(j.caches[i], j.conditions),
			ConditionIDs: conditionIDs,
			CallIDs:      callIDs,
			Config:       j.cfg.Pipeline,
			Logger:       j.logger,
		})
		res, err := pl.Run(ctx, j.genes)
		if err != nil {
			return tx, err
		}
		j.report.Combinations = append(j.report.Combinations, CombinationReport{Params: p, Result: res})
	}
	return tx, nil
}
