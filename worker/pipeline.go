// Package worker implements the iSet-pipeline + remainder execution
// unit: the Serial and Parallel worker variants, the bounded SPSC job
// queue, and the listener bus. Both variants share the same pipeline
// (this file) so their contracts are identical; only how a batch
// reaches the pipeline differs.
package worker

import (
	"github.com/theojepsen/nuevomatch/nmerror"
	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/remainder"
	"github.com/theojepsen/nuevomatch/rqrmi"
	"github.com/theojepsen/nuevomatch/subset"
)

// Config carries the short-circuit switches from the classifier's
// configuration that affect how far into the pipeline a batch travels.
type Config struct {
	DisableAllClassification bool
	DisableBinSearch         bool
	DisableValidationPhase   bool
	DisableRemainder         bool
}

// Pipeline owns the iSets and optional remainder classifier assigned
// to one worker, and runs stages A through D of the search pipeline
// for a batch. It never blocks. Stage B's scratch arrays are allocated
// once in NewPipeline, sized against the iSet count, which is fixed
// after grouping; Stage A still allocates its per-iSet inference
// results on every call.
type Pipeline struct {
	isets     []*subset.Subset
	remainder *remainder.Classifier
	cfg       Config

	// Scratch arrays for Stage B, sized once to len(isets) since a
	// pipeline's iSet count never changes after grouping. A pipeline is
	// owned by exactly one worker goroutine at a time, so reusing these
	// across calls needs no synchronization.
	scratchPosition []int
	scratchUBound   []int
	scratchLBound   []int
	scratchErrs     []int
}

// NewPipeline groups the given subsets into one pipeline. A worker may
// own at most one remainder classifier; a second one is a ConfigError.
func NewPipeline(subsets []subset.Subset, cfg Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}
	for i := range subsets {
		s := subsets[i]
		switch s.Kind() {
		case subset.ISet:
			p.isets = append(p.isets, &s)
		case subset.Remainder:
			if p.remainder != nil {
				return nil, nmerror.New(nmerror.Config, "worker: two remainder classifiers assigned to one worker")
			}
			p.remainder = s.RemainderClassifier()
		}
	}
	K := len(p.isets)
	p.scratchPosition = make([]int, K)
	p.scratchUBound = make([]int, K)
	p.scratchLBound = make([]int, K)
	p.scratchErrs = make([]int, K)
	return p, nil
}

// Classify runs the full stage A→D pipeline for one batch.
func (p *Pipeline) Classify(batch nmtype.PacketBatch) nmtype.ActionBatch {
	if p.cfg.DisableAllClassification {
		return nmtype.NoMatchBatch()
	}

	infos := p.modelInference(batch)

	if p.cfg.DisableBinSearch {
		return nmtype.NoMatchBatch()
	}

	result := nmtype.NoMatchBatch()
	p.boundedSearchAndValidate(batch, infos, &result, p.cfg.DisableValidationPhase)

	if !p.cfg.DisableRemainder && p.remainder != nil {
		result = p.remainder.Classify(batch, result)
	}
	return result
}

// modelInference is Stage A: invoke rqrmi_search once per iSet for
// the whole batch, interleaved across iSets (one call per k, not one
// call per packet) so independent loads to different iSet arrays can
// overlap.
func (p *Pipeline) modelInference(batch nmtype.PacketBatch) [][]rqrmi.Info {
	infos := make([][]rqrmi.Info, len(p.isets))
	var fieldValues [nmtype.BatchSize]uint32
	for k, is := range p.isets {
		set := is.ISet()
		for i, pkt := range batch {
			if pkt != nil {
				fieldValues[i] = pkt.Field(set.FieldIndex())
			} else {
				fieldValues[i] = 0
			}
		}
		infos[k] = set.RqrmiSearch(fieldValues[:])
	}
	return infos
}

// boundedSearchAndValidate runs Stage B (the memory-parallel bounded
// binary search) and Stage C (validation) for every lane of the batch,
// keeping per-lane the iSet result with the smallest priority value.
func (p *Pipeline) boundedSearchAndValidate(batch nmtype.PacketBatch, infos [][]rqrmi.Info, result *nmtype.ActionBatch, skipValidation bool) {
	K := len(p.isets)
	if K == 0 {
		return
	}
	position := p.scratchPosition
	uBound := p.scratchUBound
	lBound := p.scratchLBound
	errs := p.scratchErrs

	for i, pkt := range batch {
		if pkt == nil {
			continue
		}

		maxError := 0
		for k, is := range p.isets {
			set := is.ISet()
			info := infos[k][i]
			size := set.Size()
			pos := int(info.Output * float64(size))
			if pos >= size {
				pos = size - 1
			}
			if pos < 0 {
				pos = 0
			}
			errs[k] = int(info.Error)

			u := pos + errs[k]
			if u > size-1 {
				u = size - 1
			}
			l := pos - errs[k]
			if l < 0 {
				l = 0
			}
			position[k] = pos
			uBound[k] = u
			lBound[k] = l
			if errs[k] > maxError {
				maxError = errs[k]
			}
		}

		for maxError > 0 {
			for k, is := range p.isets {
				set := is.ISet()
				pos := position[k]
				current := set.GetIndex(pos) <= infos[k][i].Input
				next := set.GetIndex(pos+1) > infos[k][i].Input
				switch {
				case current && next:
					// target found for this iSet; do not move.
				case current:
					lBound[k] = pos
					position[k] = ceilHalf(lBound[k] + uBound[k])
				case infos[k][i].Valid:
					uBound[k] = pos
					position[k] = (lBound[k] + uBound[k]) / 2
				}
			}
			maxError >>= 1
		}

		if skipValidation {
			continue
		}
		for k, is := range p.isets {
			out := is.ISet().DoValidation(pkt, position[k])
			if out.Better(result[i]) {
				result[i] = out
			}
		}
	}
}

func ceilHalf(sum int) int {
	return (sum + 1) / 2
}
