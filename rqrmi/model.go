// Package rqrmi implements the reference model evaluator: a small
// two-stage piecewise learned index (root stage buckets by field
// value, leaf stage predicts a normalized position by linear
// regression) that produces the per-packet (position, error bound,
// validity) triples an IntervalSet's bounded binary search consumes.
//
// Training a production-grade RQRMI is an offline concern handled by
// an external toolchain; this package's Train is a straightforward
// reference implementation good enough to build a runnable classifier
// end to end, grounded the same way the retrieval pack's own learned-
// index examples bucket keys before fitting a per-bucket linear model.
package rqrmi

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Info is the per-packet output of a batch inference call: a
// predicted normalized position in [0,1], an integer error bound, a
// validity flag, and the field value that produced it.
type Info struct {
	Input  uint32
	Output float64
	Error  uint32
	Valid  bool
}

// LinearModel is a leaf-stage model: position ≈ Slope*x + Intercept.
type LinearModel struct {
	Slope     float64
	Intercept float64
}

func (m LinearModel) predict(x float64) float64 {
	return m.Slope*x + m.Intercept
}

type leaf struct {
	model      LinearModel
	errorBound uint32
}

// Model is a trained RQRMI: a root stage that buckets a field value
// into one of len(leaves) leaves, and a leaf stage that predicts a
// normalized [0,1] position within the iSet's index array.
type Model struct {
	globalMin uint32
	globalMax uint32
	leaves    []leaf
}

// Fanout returns the number of leaf models (root-stage buckets).
func (m *Model) Fanout() int {
	return len(m.leaves)
}

func (m *Model) bucketOf(x uint32) int {
	span := float64(m.globalMax) - float64(m.globalMin)
	if span <= 0 {
		return 0
	}
	b := int(float64(x-m.globalMin) / span * float64(len(m.leaves)))
	if b >= len(m.leaves) {
		b = len(m.leaves) - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// Infer runs batch inference, returning one Info per input value. The
// core depends only on this batch-in/batch-out contract: it never
// inspects the model's internal root/leaf structure.
func (m *Model) Infer(batch []uint32) []Info {
	out := make([]Info, len(batch))
	for i, x := range batch {
		b := m.bucketOf(x)
		lf := m.leaves[b]
		pos := lf.model.predict(float64(x))
		if pos < 0 {
			pos = 0
		}
		if pos > 1 {
			pos = 1
		}
		out[i] = Info{
			Input:  x,
			Output: pos,
			Error:  lf.errorBound,
			Valid:  true,
		}
	}
	return out
}

// Train fits a fresh Model from parallel arrays of sorted key values
// and their normalized target positions in [0,1], against a fixed
// root-stage fanout. Training never runs on the online path; only the
// offline build tool calls this.
func Train(keys []uint32, positions []float64, fanout int) *Model {
	m := &Model{leaves: make([]leaf, fanout)}
	if len(keys) == 0 {
		return m
	}
	m.globalMin, m.globalMax = keys[0], keys[len(keys)-1]

	buckets := make([][]int, fanout)
	span := float64(m.globalMax) - float64(m.globalMin)
	for i, k := range keys {
		var b int
		if span <= 0 {
			b = 0
		} else {
			b = int(float64(k-m.globalMin) / span * float64(fanout))
			if b >= fanout {
				b = fanout - 1
			}
		}
		buckets[b] = append(buckets[b], i)
	}

	for b, idxs := range buckets {
		m.leaves[b] = fitLeaf(keys, positions, idxs)
	}
	return m
}

func fitLeaf(keys []uint32, positions []float64, idxs []int) leaf {
	if len(idxs) == 0 {
		return leaf{}
	}
	if len(idxs) == 1 {
		i := idxs[0]
		return leaf{model: LinearModel{Slope: 0, Intercept: positions[i]}}
	}

	var sumX, sumY, sumXY, sumX2 float64
	n := float64(len(idxs))
	for _, i := range idxs {
		x := float64(keys[i])
		y := positions[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	var slope, intercept float64
	if math.Abs(denom) < 1e-12 {
		intercept = sumY / n
	} else {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	}
	model := LinearModel{Slope: slope, Intercept: intercept}

	var maxErr float64
	for _, i := range idxs {
		predicted := model.predict(float64(keys[i]))
		residual := math.Abs(positions[i] - predicted)
		if residual > maxErr {
			maxErr = residual
		}
	}
	// Error bound is stored in index-position units, not [0,1] units:
	// the residual is scaled by the number of training keys, the size
	// of the index array the positions are normalized against (see
	// iset.Train).
	return leaf{model: model, errorBound: uint32(math.Ceil(maxErr*float64(len(keys)))) + 1}
}

// Size returns the serialized size of the model in bytes.
func (m *Model) Size() int {
	return 4 + 4 + 4 + len(m.leaves)*leafSize
}

const leafSize = 8 + 8 + 4 // slope + intercept + errorBound

// Pack serializes the model in the packed host-native format the
// classifier container embeds per iSet.
func (m *Model) Pack(w io.Writer) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], m.globalMin)
	binary.LittleEndian.PutUint32(hdr[4:8], m.globalMax)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(m.leaves)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "rqrmi: write header")
	}
	for _, lf := range m.leaves {
		var buf [leafSize]byte
		binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(lf.model.Slope))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(lf.model.Intercept))
		binary.LittleEndian.PutUint32(buf[16:20], lf.errorBound)
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrap(err, "rqrmi: write leaf")
		}
	}
	return nil
}

// Load deserializes a model previously written by Pack.
func Load(r io.Reader) (*Model, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "rqrmi: read header")
	}
	m := &Model{
		globalMin: binary.LittleEndian.Uint32(hdr[0:4]),
		globalMax: binary.LittleEndian.Uint32(hdr[4:8]),
	}
	fanout := binary.LittleEndian.Uint32(hdr[8:12])
	m.leaves = make([]leaf, fanout)
	for i := range m.leaves {
		var buf [leafSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, errors.Wrap(err, "rqrmi: read leaf")
		}
		m.leaves[i] = leaf{
			model: LinearModel{
				Slope:     math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
				Intercept: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
			},
			errorBound: binary.LittleEndian.Uint32(buf[16:20]),
		}
	}
	return m, nil
}
