// Package subset implements the polymorphic handle shared by iSets
// and the remainder classifier: the unit the loader groups onto
// workers for load balancing. The specification's design notes call
// for a tagged variant over a narrow capability set instead of
// runtime downcasting, so dispatch in the grouping algorithm is a
// switch on Kind rather than an interface type-assertion cast.
package subset

import (
	"io"
	"strconv"

	"github.com/theojepsen/nuevomatch/iset"
	"github.com/theojepsen/nuevomatch/remainder"
)

// Kind tags which variant a Subset wraps.
type Kind int

const (
	ISet Kind = iota
	Remainder
)

func (k Kind) String() string {
	if k == Remainder {
		return "remainder"
	}
	return "iset"
}

// Subset is a tagged handle over either an *iset.IntervalSet or a
// *remainder.Classifier, carrying just the narrow capability set the
// grouping algorithm and the worker pipeline need: Size, Kind and
// Pack. Everything else is reached by unwrapping with ISet()/
// RemainderClassifier() once a worker has claimed ownership.
type Subset struct {
	kind      Kind
	iset      *iset.IntervalSet
	remainder *remainder.Classifier
}

// FromISet wraps an iSet as a Subset.
func FromISet(s *iset.IntervalSet) Subset {
	return Subset{kind: ISet, iset: s}
}

// FromRemainder wraps a remainder classifier as a Subset.
func FromRemainder(r *remainder.Classifier) Subset {
	return Subset{kind: Remainder, remainder: r}
}

// Kind reports which variant this Subset wraps.
func (s Subset) Kind() Kind {
	return s.kind
}

// ISet returns the wrapped iSet, or nil if this Subset wraps a
// remainder classifier.
func (s Subset) ISet() *iset.IntervalSet {
	return s.iset
}

// RemainderClassifier returns the wrapped remainder classifier, or
// nil if this Subset wraps an iSet.
func (s Subset) RemainderClassifier() *remainder.Classifier {
	return s.remainder
}

// SizeBytes returns the subset's footprint in bytes, the only value
// the longest-processing-time grouping algorithm needs.
func (s Subset) SizeBytes() int {
	switch s.kind {
	case ISet:
		return int(s.iset.SizeBytes())
	case Remainder:
		return s.remainder.Size()
	default:
		return 0
	}
}

// RuleCount reports how many rules this subset covers, for
// diagnostics and print(verbose).
func (s Subset) RuleCount() int {
	switch s.kind {
	case ISet:
		return s.iset.Size()
	case Remainder:
		return s.remainder.RuleCount()
	default:
		return 0
	}
}

// String renders a one-line description, used by print(verbose).
func (s Subset) String() string {
	switch s.kind {
	case ISet:
		return "iSet(field=" + strconv.Itoa(int(s.iset.FieldIndex())) + ", size=" + strconv.Itoa(s.iset.Size()) + ")"
	case Remainder:
		return "remainder(" + s.remainder.Type().String() + ")"
	default:
		return "subset(unknown)"
	}
}

// Pack serializes the wrapped subset's own region. The container's
// top-level pack() does not call it: it re-emits iSet regions verbatim
// from the original blob and calls the remainder's own Pack directly
// (see nuevomatch.ClassifierContainer.Pack).
func (s Subset) Pack(w io.Writer) error {
	switch s.kind {
	case ISet:
		return iset.Pack(s.iset, w)
	case Remainder:
		return s.remainder.Pack(w)
	default:
		return nil
	}
}

