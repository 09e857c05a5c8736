package evidence

import (
	"context"

	"github.com/teranos/globalcalls/errors"
)

var (
	// ErrOutOfOrder is raised when an input stream breaks (gene id, call id) ordering
	ErrOutOfOrder = errors.New("evidence stream out of order")
	// ErrOrphanEvidence is raised for a secondary record matching no raw call
	ErrOrphanEvidence = errors.New("evidence without raw call")
	// ErrJoinerClosed is returned by Next after Close
	ErrJoinerClosed = errors.New("joiner closed")
)

// Group is one gene's raw calls and, per call, the matching evidence by data type.
// Calls are in ascending id order.
type Group struct {
	GeneID   int64
	Calls    []RawCall
	Evidence map[int64]map[DataType][]ExperimentEvidence
}

// EvidenceFor returns the evidence of one call; nil when the call has none
func (g *Group) EvidenceFor(callID int64) map[DataType][]ExperimentEvidence {
	return g.Evidence[callID]
}

type key struct{ gene, call int64 }

func (k key) less(o key) bool {
	if k.gene != o.gene {
		return k.gene < o.gene
	}
	return k.call < o.call
}

// secondaryStream is one data type's evidence cursor with one record of lookahead
type secondaryStream struct {
	dataType DataType
	cursor   Cursor[ExperimentEvidence]
	head     ExperimentEvidence
	hasHead  bool
	started  bool
	last     key
}

func (s *secondaryStream) advance(ctx context.Context) error {
	rec, ok, err := s.cursor.Next(ctx)
	if err != nil {
		return errors.Wrapf(err, "read %s evidence", s.dataType)
	}
	s.hasHead = ok
	if !ok {
		return nil
	}
	if rec.DataType == "" {
		rec.DataType = s.dataType
	}
	k := key{rec.GeneID, rec.CallID}
	if s.started && k.less(s.last) {
		return errors.Wrapf(ErrOutOfOrder, "%s evidence (gene %d, call %d) after (gene %d, call %d)",
			s.dataType, k.gene, k.call, s.last.gene, s.last.call)
	}
	s.started = true
	s.last = k
	s.head = rec
	return nil
}

// Joiner merge-joins a primary raw-call stream sorted strictly by (gene id,
// call id) with per-data-type evidence streams sorted the same way (several
// records may share a key). Next yields one Group per gene. Any ordering
// violation or orphan evidence is fatal: the joiner stops and returns the
// error from every later Next.
type Joiner struct {
	primary     Cursor[RawCall]
	secondaries []*secondaryStream

	pending    RawCall
	hasPending bool
	lastCall   key
	started    bool
	primed     bool

	err    error
	closed bool
}

// NewJoiner creates a joiner. Secondary streams are consumed in the order of
// dataTypes; a data type absent from the map contributes nothing.
func NewJoiner(primary Cursor[RawCall], secondaries map[DataType]Cursor[ExperimentEvidence]) *Joiner {
	j := &Joiner{primary: primary}
	for _, dt := range DataTypes {
		if c, ok := secondaries[dt]; ok {
			j.secondaries = append(j.secondaries, &secondaryStream{dataType: dt, cursor: c})
		}
	}
	return j
}

func (j *Joiner) fail(err error) error {
	if j.err == nil {
		j.err = err
	}
	return j.err
}

func (j *Joiner) readPrimary(ctx context.Context) error {
	rc, ok, err := j.primary.Next(ctx)
	if err != nil {
		return errors.Wrap(err, "read raw calls")
	}
	j.hasPending = ok
	if !ok {
		return nil
	}
	k := key{rc.GeneID, rc.ID}
	if j.started && !j.lastCall.less(k) {
		return errors.Wrapf(ErrOutOfOrder, "raw call (gene %d, call %d) after (gene %d, call %d)",
			k.gene, k.call, j.lastCall.gene, j.lastCall.call)
	}
	j.started = true
	j.lastCall = k
	j.pending = rc
	return nil
}

func (j *Joiner) prime(ctx context.Context) error {
	if j.primed {
		return nil
	}
	j.primed = true
	if err := j.readPrimary(ctx); err != nil {
		return err
	}
	for _, s := range j.secondaries {
		if err := s.advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Next returns the next gene's group, or false when every stream is exhausted.
func (j *Joiner) Next(ctx context.Context) (*Group, bool, error) {
	if j.closed {
		return nil, false, ErrJoinerClosed
	}
	if j.err != nil {
		return nil, false, j.err
	}
	if err := j.prime(ctx); err != nil {
		return nil, false, j.fail(err)
	}

	if !j.hasPending {
		// primary exhausted: any remaining evidence has no raw call
		for _, s := range j.secondaries {
			if s.hasHead {
				return nil, false, j.fail(errors.Wrapf(ErrOrphanEvidence,
					"%s evidence for gene %d, call %d after last raw call", s.dataType, s.head.GeneID, s.head.CallID))
			}
		}
		return nil, false, nil
	}

	group := &Group{
		GeneID:   j.pending.GeneID,
		Evidence: make(map[int64]map[DataType][]ExperimentEvidence),
	}
	for j.hasPending && j.pending.GeneID == group.GeneID {
		call := j.pending
		group.Calls = append(group.Calls, call)
		if err := j.collect(ctx, group, call); err != nil {
			return nil, false, j.fail(err)
		}
		if err := j.readPrimary(ctx); err != nil {
			return nil, false, j.fail(err)
		}
	}
	return group, true, nil
}

// collect advances every secondary stream past call's key
func (j *Joiner) collect(ctx context.Context, group *Group, call RawCall) error {
	ck := key{call.GeneID, call.ID}
	for _, s := range j.secondaries {
		for s.hasHead {
			hk := key{s.head.GeneID, s.head.CallID}
			if hk.less(ck) {
				return errors.Wrapf(ErrOrphanEvidence, "%s evidence for gene %d, call %d", s.dataType, hk.gene, hk.call)
			}
			if hk != ck {
				break
			}
			byType := group.Evidence[call.ID]
			if byType == nil {
				byType = make(map[DataType][]ExperimentEvidence)
				group.Evidence[call.ID] = byType
			}
			byType[s.dataType] = append(byType[s.dataType], s.head)
			if err := s.advance(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases every underlying cursor. It is safe to call more than once
// and after a failure.
func (j *Joiner) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	var err error
	if cerr := j.primary.Close(); cerr != nil {
		err = errors.Wrap(cerr, "close raw calls")
	}
	for _, s := range j.secondaries {
		if cerr := s.cursor.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(cerr, "close %s evidence", s.dataType))
		}
	}
	return err
}
