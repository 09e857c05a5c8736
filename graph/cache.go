// Package graph memoizes condition closures for one (species, axis-combination)
// aggregation run. A Cache is built once before propagation starts and is
// shared read-mostly by every pipeline worker.
package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/logger"
	"github.com/teranos/globalcalls/ontology"
)

// ErrMissingGraphData marks a condition the ontology cannot place. It is fatal
// for the run: the condition's evidence would otherwise be silently dropped.
var ErrMissingGraphData = errors.New("missing graph data")

// DefaultDescendantDepth bounds descendant closures when none is configured
const DefaultDescendantDepth = 1

// Closure is the memoized neighbourhood of one condition. Slices are shared
// between callers and must not be modified.
type Closure struct {
	Ancestors   []condition.Condition
	Descendants []condition.Condition
}

// Stats reports cache effectiveness for logs
type Stats struct {
	Entries int64
	Hits    int64
	Misses  int64
}

// Cache computes closures on first access and keeps them for the run.
// Safe for concurrent use.
type Cache struct {
	source ontology.Service
	params condition.Params
	depth  int
	logger *zap.SugaredLogger

	entries sync.Map // condition.Condition -> *Closure
	group   singleflight.Group

	size   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache over source for conditions projected on params.
// depth bounds descendant closures; 0 disables them.
func NewCache(source ontology.Service, params condition.Params, depth int, log *zap.SugaredLogger) *Cache {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if depth < 0 {
		depth = DefaultDescendantDepth
	}
	return &Cache{
		source: source,
		params: params,
		depth:  depth,
		logger: log.Named("graph.cache"),
	}
}

// Params returns the axis-combination the cache was built for
func (c *Cache) Params() condition.Params { return c.params }

// Get returns the closure of c, which must already be projected on the
// cache's params. Concurrent first accesses for the same condition share one
// ontology query; the stored value is whichever completed first.
func (c *Cache) Get(ctx context.Context, cond condition.Condition) (*Closure, error) {
	if v, ok := c.entries.Load(cond); ok {
		c.hits.Add(1)
		return v.(*Closure), nil
	}

	v, err, _ := c.group.Do(cond.Key(), func() (interface{}, error) {
		if v, ok := c.entries.Load(cond); ok {
			return v, nil
		}
		c.misses.Add(1)
		closure, err := c.compute(ctx, cond)
		if err != nil {
			return nil, err
		}
		actual, loaded := c.entries.LoadOrStore(cond, closure)
		if !loaded {
			c.size.Add(1)
		}
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Closure), nil
}

func (c *Cache) compute(ctx context.Context, cond condition.Condition) (*Closure, error) {
	anc, err := c.source.Ancestors(ctx, cond, c.params)
	if err != nil {
		return nil, c.wrap(err, cond, "ancestors")
	}
	var desc []condition.Condition
	if c.depth > 0 {
		desc, err = c.source.Descendants(ctx, cond, c.params, c.depth)
		if err != nil {
			return nil, c.wrap(err, cond, "descendants")
		}
	}
	return &Closure{Ancestors: anc, Descendants: desc}, nil
}

func (c *Cache) wrap(err error, cond condition.Condition, what string) error {
	err = errors.Wrapf(err, "%s of %s", what, cond)
	if errors.Is(err, ontology.ErrUnknownTerm) {
		err = errors.Mark(err, ErrMissingGraphData)
	}
	return errors.WithDetailf(err, "species %d, condition parameters %s", cond.SpeciesID, c.params)
}

// WarmUp computes closures for every condition with bounded parallelism and
// returns the first failure, so missing graph data surfaces before any insert.
func (c *Cache) WarmUp(ctx context.Context, conds []condition.Condition, parallelism int) error {
	if parallelism < 1 {
		parallelism = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, cond := range conds {
		g.Go(func() error {
			_, err := c.Get(gctx, cond)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s := c.Stats()
	c.logger.Debugw("Condition graph warmed up",
		logger.FieldConditions, len(conds),
		logger.FieldCondParams, c.params.String(),
		"entries", s.Entries,
	)
	return nil
}

// Stats returns a snapshot of cache counters
func (c *Cache) Stats() Stats {
	return Stats{Entries: c.size.Load(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
