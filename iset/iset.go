// Package iset implements the interval set (iSet): a learned-index
// backed lookup over one header field, covering the subset of rules
// whose intervals on that field are mutually consistent. An iSet owns
// a sorted index array of interval boundaries, a validation rule table
// keyed by position, a field selector, and a model evaluator (rqrmi).
//
// Building an iSet (deriving intervals and training its model from a
// rule list) is an external, offline concern per the classifier's
// scope; this package loads a precompiled iSet and runs its half of
// the online search pipeline: rqrmi inference plus bookkeeping the
// worker needs to run the shared bounded binary search (worker.Pipeline)
// and per-packet validation.
package iset

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/rqrmi"
)

// IntervalSet is the online, load-time representation of one iSet.
type IntervalSet struct {
	fieldIndex uint32
	index      []uint32 // sorted boundaries, len == Size()+1
	actions    []nmtype.ActionOutput
	rules      []nmtype.Rule // retained so ExtractRules can hand them to the remainder
	model      *rqrmi.Model
	sizeBytes  uint32
}

// FieldIndex returns the header field this iSet is keyed on.
func (s *IntervalSet) FieldIndex() uint32 {
	return s.fieldIndex
}

// Size returns the number of stored intervals.
func (s *IntervalSet) Size() int {
	if len(s.index) == 0 {
		return 0
	}
	return len(s.index) - 1
}

// SizeBytes returns the iSet's size in bytes, used for load-balancing
// subset grouping.
func (s *IntervalSet) SizeBytes() uint32 {
	return s.sizeBytes
}

// GetIndex returns the boundary key stored at pos.
func (s *IntervalSet) GetIndex(pos int) uint32 {
	return s.index[pos]
}

// Model exposes the iSet's model evaluator to the worker's Stage A.
func (s *IntervalSet) Model() *rqrmi.Model {
	return s.model
}

// RqrmiSearch runs Stage A (model inference) for a batch of field
// values, delegating to the opaque model evaluator.
func (s *IntervalSet) RqrmiSearch(batch []uint32) []rqrmi.Info {
	return s.model.Infer(batch)
}

// DoValidation is Stage C: confirm that the candidate position's
// underlying rule actually matches the full header, not only the
// single field used to reach this iSet.
func (s *IntervalSet) DoValidation(header *nmtype.PacketHeader, pos int) nmtype.ActionOutput {
	if pos < 0 || pos >= len(s.actions) {
		return nmtype.NoMatch
	}
	action := s.actions[pos]
	if !action.IsMatch() {
		return nmtype.NoMatch
	}
	rule := s.rules[pos]
	if rule.Matches(header) {
		return action
	}
	return nmtype.NoMatch
}

// ExtractRules returns the rules this iSet would otherwise cover, for
// the loader to append to the remainder's rule list when the iSet is
// skipped by the subset filter.
func (s *IntervalSet) ExtractRules() []nmtype.Rule {
	out := make([]nmtype.Rule, 0, len(s.rules))
	for i, r := range s.rules {
		if s.actions[i].IsMatch() {
			out = append(out, r)
		}
	}
	return out
}

// RearrangeFieldIndices permutes the iSet's internal field index to
// match the configured arbitrary-fields permutation: perm[i] is the
// original field index now taking position i in the classifier's
// active schema, so the iSet's stored fieldIndex is remapped to its
// position within perm.
func (s *IntervalSet) RearrangeFieldIndices(perm []uint32) {
	for i, original := range perm {
		if original == s.fieldIndex {
			s.fieldIndex = uint32(i)
			return
		}
	}
}

// Load parses one iSet's nested sub-object: field index, the sorted
// index array, the validation rule table, and the packed rqrmi model.
func Load(r io.Reader) (*IntervalSet, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "iset: read header")
	}
	s := &IntervalSet{
		fieldIndex: binary.LittleEndian.Uint32(hdr[0:4]),
		sizeBytes:  binary.LittleEndian.Uint32(hdr[8:12]),
	}
	size := binary.LittleEndian.Uint32(hdr[4:8])

	s.index = make([]uint32, size+1)
	for i := range s.index {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errors.Wrap(err, "iset: read index array")
		}
		s.index[i] = binary.LittleEndian.Uint32(b[:])
	}

	s.actions = make([]nmtype.ActionOutput, size)
	s.rules = make([]nmtype.Rule, size)
	for i := range s.actions {
		action, rule, err := readValidationEntry(r)
		if err != nil {
			return nil, errors.Wrap(err, "iset: read validation table")
		}
		s.actions[i] = action
		s.rules[i] = rule
	}

	model, err := rqrmi.Load(r)
	if err != nil {
		return nil, errors.Wrap(err, "iset: read model")
	}
	s.model = model
	return s, nil
}

func readValidationEntry(r io.Reader) (nmtype.ActionOutput, nmtype.Rule, error) {
	var buf [8 + nmtype.FieldCount*8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nmtype.ActionOutput{}, nmtype.Rule{}, err
	}
	action := nmtype.ActionOutput{
		Priority: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Action:   int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
	var rule nmtype.Rule
	rule.Priority = action.Priority
	rule.Action = action.Action
	off := 8
	for i := 0; i < nmtype.FieldCount; i++ {
		rule.Fields[i] = nmtype.FieldRange{
			Low:  binary.LittleEndian.Uint32(buf[off : off+4]),
			High: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		}
		off += 8
	}
	return action, rule, nil
}

// Pack serializes the iSet to the nested sub-object form Load reads,
// from its current in-memory state (a field index changed by
// RearrangeFieldIndices is written as changed). The classifier
// container does not call Pack: it re-emits the original iSet region
// from the loaded blob.
func Pack(s *IntervalSet, w io.Writer) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], s.fieldIndex)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(s.Size()))
	binary.LittleEndian.PutUint32(hdr[8:12], s.sizeBytes)
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "iset: write header")
	}
	for _, k := range s.index {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], k)
		if _, err := w.Write(b[:]); err != nil {
			return errors.Wrap(err, "iset: write index array")
		}
	}
	for i, action := range s.actions {
		if err := writeValidationEntry(w, action, s.rules[i]); err != nil {
			return errors.Wrap(err, "iset: write validation table")
		}
	}
	return s.model.Pack(w)
}

func writeValidationEntry(w io.Writer, action nmtype.ActionOutput, rule nmtype.Rule) error {
	var buf [8 + nmtype.FieldCount*8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(action.Priority))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(action.Action))
	off := 8
	for i := 0; i < nmtype.FieldCount; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], rule.Fields[i].Low)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], rule.Fields[i].High)
		off += 8
	}
	_, err := w.Write(buf[:])
	return err
}

// Train builds a fresh iSet from a sorted, mutually-consistent rule
// list on one field, for the offline build tool. It is the only
// non-loading constructor in this package: the online core never
// calls it.
func Train(fieldIndex uint32, sortedRules []nmtype.Rule, fanout int) *IntervalSet {
	s := &IntervalSet{fieldIndex: fieldIndex}
	n := len(sortedRules)
	s.index = make([]uint32, n+1)
	s.actions = make([]nmtype.ActionOutput, n)
	s.rules = make([]nmtype.Rule, n)

	keys := make([]uint32, n)
	positions := make([]float64, n)
	for i, r := range sortedRules {
		s.index[i] = r.Fields[fieldIndex].Low
		s.actions[i] = r.ActionOutput()
		s.rules[i] = r
		keys[i] = r.Fields[fieldIndex].Low
		if n > 1 {
			positions[i] = float64(i) / float64(n)
		}
	}
	if n > 0 {
		s.index[n] = sortedRules[n-1].Fields[fieldIndex].High + 1
	}

	model := rqrmi.Train(keys, positions, fanout)
	// rqrmi.Train already reports error bounds in index-position units
	// (each [0,1] residual scaled by the key count, which is this iSet's
	// size), so the worker's bounded search windows are measured in
	// positions; rescaleErrorBounds leaves them unchanged.
	rescaleErrorBounds(model, n)
	s.model = model
	s.sizeBytes = uint32(s.estimateSizeBytes())
	return s
}

func rescaleErrorBounds(m *rqrmi.Model, size int) {
	// No-op placeholder kept distinct from Model's internals: the
	// reference trainer already reports bounds in position units
	// because rqrmi.Train scales each leaf's residual over the
	// normalized positions (i/n) by the key count n. Retained as a
	// named hook so an offline build tool swapping in a tighter error
	// estimator has an obvious place to plug in.
	_ = size
}

func (s *IntervalSet) estimateSizeBytes() int {
	return 12 + len(s.index)*4 + len(s.actions)*(8+nmtype.FieldCount*8) + s.model.Size()
}
