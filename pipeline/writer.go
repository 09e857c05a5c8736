package pipeline

import (
	"context"

	"github.com/teranos/globalcalls/condition"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/logger"
	"github.com/teranos/globalcalls/store"
)

// writer is the single consumer of the queue. It owns the seen-sets, so
// aggregated condition ids are assigned here and relations deduplicated here.
type writer struct {
	sink         Sink
	params       condition.Params
	conditionIDs *Counter
	logger       stageLogger

	seenConditions map[condition.Condition]int64
	seenRelations  map[store.Relation]struct{}

	conditions int64
	relations  int64
	calls      int64
}

func newWriter(sink Sink, params condition.Params, conditionIDs *Counter, log stageLogger) *writer {
	return &writer{
		sink:           sink,
		params:         params,
		conditionIDs:   conditionIDs,
		logger:         stageLogger{log.Named("writer")},
		seenConditions: make(map[condition.Condition]int64),
		seenRelations:  make(map[store.Relation]struct{}),
	}
}

// drain consumes units until the queue is closed or ctx is cancelled
func (w *writer) drain(ctx context.Context, queue <-chan Unit) error {
	w.logger.Starting("drain")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-queue:
			if !ok {
				w.logger.Debugw("Queue drained",
					logger.FieldConditions, w.conditions,
					logger.FieldCalls, w.calls,
				)
				return nil
			}
			QueueDepth.Set(float64(len(queue)))
			if err := w.write(ctx, u); err != nil {
				return errors.Wrapf(err, "write gene %d", u.GeneID)
			}
		}
	}
}

func (w *writer) write(ctx context.Context, u Unit) error {
	var (
		newConds  []store.GlobalCondition
		relations []store.Relation
		records   = make([]store.CallRecord, 0, len(u.Calls))
	)
	for _, call := range u.Calls {
		id, ok := w.seenConditions[call.Condition]
		if !ok {
			id = w.conditionIDs.Next()
			w.seenConditions[call.Condition] = id
			newConds = append(newConds, store.GlobalCondition{ID: id, Params: w.params, Condition: call.Condition})
		}
		for _, src := range call.Sources {
			rel := store.Relation{RawConditionID: src.RawConditionID, GlobalConditionID: id, Origin: src.Origin}
			if _, dup := w.seenRelations[rel]; dup {
				continue
			}
			w.seenRelations[rel] = struct{}{}
			relations = append(relations, rel)
		}
		records = append(records, store.CallRecord{
			ID:                call.ID,
			GeneID:            call.GeneID,
			GlobalConditionID: id,
			Data:              call.Data,
		})
	}

	if len(newConds) > 0 {
		if err := w.sink.InsertConditions(ctx, newConds); err != nil {
			return err
		}
		w.conditions += int64(len(newConds))
		RowsInserted.WithLabelValues("global_cond").Add(float64(len(newConds)))
	}
	if len(relations) > 0 {
		if err := w.sink.InsertRelations(ctx, relations); err != nil {
			return err
		}
		w.relations += int64(len(relations))
		RowsInserted.WithLabelValues("global_cond_to_cond").Add(float64(len(relations)))
	}
	if err := w.sink.InsertCalls(ctx, records); err != nil {
		return err
	}
	w.calls += int64(len(records))
	RowsInserted.WithLabelValues("global_expression").Add(float64(len(records)))
	return nil
}
