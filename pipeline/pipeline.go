// Package pipeline runs propagation and reconciliation over gene batches in a
// fixed worker pool and persists the results through a single writer.
//
// Workers and the writer meet at a small bounded queue of per-gene units.
// The first error from any goroutine cancels every other one; the caller owns
// the transaction and rolls it back when Run fails.
package pipeline

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/globalcalls/calls"
	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/evidence"
	"github.com/teranos/globalcalls/logger"
	"github.com/teranos/globalcalls/store"
)

// Source opens the merge-joined evidence of a gene batch. *store.Store implements it.
type Source interface {
	OpenJoiner(ctx context.Context, geneIDs []int64, dataTypes []evidence.DataType) (*evidence.Joiner, error)
}

// Sink receives the writer's inserts. *store.Tx implements it.
type Sink interface {
	InsertConditions(ctx context.Context, conds []store.GlobalCondition) error
	InsertRelations(ctx context.Context, relations []store.Relation) error
	InsertCalls(ctx context.Context, records []store.CallRecord) error
}

// Config sizes one pipeline run
type Config struct {
	Workers       int
	BatchSize     int
	QueueCapacity int
	DataTypes     []evidence.DataType
}

// DefaultConfig returns the sizes used when none are configured
func DefaultConfig() Config {
	return Config{Workers: 4, BatchSize: 1000, QueueCapacity: 5, DataTypes: evidence.DataTypes}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Workers < 1 {
		c.Workers = def.Workers
	}
	if c.BatchSize < 1 {
		c.BatchSize = def.BatchSize
	}
	if c.QueueCapacity < 1 {
		c.QueueCapacity = def.QueueCapacity
	}
	if len(c.DataTypes) == 0 {
		c.DataTypes = def.DataTypes
	}
	return c
}

// Unit is one gene's complete set of aggregated calls. It is the atomic
// element of the queue: a gene's calls are never split across units.
type Unit struct {
	GeneID int64
	Calls  []calls.AggregatedCall
}

// Result counts what one run produced
type Result struct {
	Genes      int64
	Batches    int
	Units      int64
	Conditions int64
	Relations  int64
	Calls      int64
	Duration   time.Duration
}

// stageLogger wraps zap.SugaredLogger with stage transition methods
type stageLogger struct {
	*zap.SugaredLogger
}

// Starting logs the opening of a stage at DEBUG level
func (l stageLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("starting "+msg, keysAndValues...)
}

// Finished logs the end of a stage at INFO level
func (l stageLogger) Finished(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// Pipeline aggregates one species under one axis-combination
type Pipeline struct {
	source       Source
	sink         Sink
	propagator   *calls.Propagator
	params       condition.Params
	speciesID    int64
	cfg          Config
	conditionIDs *Counter
	callIDs      *Counter
	logger       stageLogger

	genes atomic.Int64
	units atomic.Int64
}

// Options groups the collaborators of a Pipeline
type Options struct {
	SpeciesID    int64
	Params       condition.Params
	Source       Source
	Sink         Sink
	Propagator   *calls.Propagator
	ConditionIDs *Counter
	CallIDs      *Counter
	Config       Config
	Logger       *zap.SugaredLogger
}

// New creates a pipeline. Counters are shared across the runs of a species
// so ids stay unique within its transaction.
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		source:       opts.Source,
		sink:         opts.Sink,
		propagator:   opts.Propagator,
		params:       opts.Params,
		speciesID:    opts.SpeciesID,
		cfg:          opts.Config.normalized(),
		conditionIDs: opts.ConditionIDs,
		callIDs:      opts.CallIDs,
		logger: stageLogger{log.Named("pipeline").With(
			logger.FieldSpeciesID, opts.SpeciesID,
			logger.FieldCondParams, opts.Params.String(),
		)},
	}
}

// Partition splits ascending gene ids into contiguous batches of at most size
func Partition(geneIDs []int64, size int) [][]int64 {
	if size < 1 {
		size = 1
	}
	var out [][]int64
	for start := 0; start < len(geneIDs); start += size {
		end := start + size
		if end > len(geneIDs) {
			end = len(geneIDs)
		}
		out = append(out, geneIDs[start:end])
	}
	return out
}

// Run processes every gene and writes the results through the sink. It
// returns once the queue is drained, or with the first error after every
// worker and the writer have stopped.
func (p *Pipeline) Run(ctx context.Context, geneIDs []int64) (Result, error) {
	start := time.Now()
	batches := Partition(geneIDs, p.cfg.BatchSize)
	queue := make(chan Unit, p.cfg.QueueCapacity)
	w := newWriter(p.sink, p.params, p.conditionIDs, p.logger)

	p.logger.Starting("pipeline",
		logger.FieldGeneCount, len(geneIDs),
		logger.FieldBatch, len(batches),
		logger.FieldWorkers, p.cfg.Workers,
		logger.FieldQueueCapacity, p.cfg.QueueCapacity,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.drain(gctx, queue)
	})

	g.Go(func() error {
		defer close(queue)

		workers, wctx := errgroup.WithContext(gctx)
		workers.SetLimit(p.cfg.Workers)
		for i, batch := range batches {
			if wctx.Err() != nil {
				break
			}
			workers.Go(func() error {
				return p.processBatch(wctx, i, batch, queue)
			})
		}
		if err := workers.Wait(); err != nil {
			return err
		}
		// batches skipped because the run was cancelled must not look like success
		return gctx.Err()
	})

	err := g.Wait()
	QueueDepth.Set(0)

	res := Result{
		Genes:      p.genes.Load(),
		Batches:    len(batches),
		Units:      p.units.Load(),
		Conditions: w.conditions,
		Relations:  w.relations,
		Calls:      w.calls,
		Duration:   time.Since(start),
	}
	if err != nil {
		p.logger.Errorw("Pipeline failed",
			logger.FieldError, err.Error(),
			logger.FieldCount, res.Units,
		)
		return res, err
	}

	p.logger.Finished("Pipeline drained",
		logger.FieldGeneCount, res.Genes,
		logger.FieldConditions, res.Conditions,
		logger.FieldRelations, res.Relations,
		logger.FieldCalls, res.Calls,
		logger.FieldDurationMS, res.Duration.Milliseconds(),
	)
	return res, nil
}

// processBatch runs one gene batch end to end and enqueues one unit per gene
// that produced aggregated calls.
func (p *Pipeline) processBatch(ctx context.Context, batch int, geneIDs []int64, queue chan<- Unit) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	WorkersActive.Inc()
	defer WorkersActive.Dec()

	log := p.logger.With(logger.FieldBatch, batch, logger.FieldBatchSize, len(geneIDs))
	log.Debugw("Processing gene batch")

	joiner, err := p.source.OpenJoiner(ctx, geneIDs, p.cfg.DataTypes)
	if err != nil {
		return errors.Wrapf(err, "open evidence of batch %d", batch)
	}
	defer func() {
		if cerr := joiner.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close evidence of batch %d", batch)
		}
	}()

	species := strconv.FormatInt(p.speciesID, 10)
	params := p.params.String()
	for {
		group, ok, err := joiner.Next(ctx)
		if err != nil {
			return errors.Wrapf(err, "batch %d", batch)
		}
		if !ok {
			break
		}

		contributions, err := p.propagator.Propagate(ctx, group)
		if err != nil {
			return errors.Wrapf(err, "propagate gene %d", group.GeneID)
		}
		aggregated := calls.Reconcile(group.GeneID, contributions)
		for i := range aggregated {
			aggregated[i].ID = p.callIDs.Next()
		}
		p.genes.Add(1)
		GenesProcessed.WithLabelValues(species, params).Inc()

		if len(aggregated) == 0 {
			continue
		}
		select {
		case queue <- Unit{GeneID: group.GeneID, Calls: aggregated}:
			p.units.Add(1)
			UnitsEnqueued.WithLabelValues(species, params).Inc()
			QueueDepth.Set(float64(len(queue)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Debugw("Gene batch done")
	return nil
}
