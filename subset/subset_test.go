package subset

import (
	"bytes"
	"testing"

	"github.com/theojepsen/nuevomatch/iset"
	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/remainder"
)

func wildcard() nmtype.FieldRange { return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit} }

func oneFieldRule(low, high uint32, priority int32) nmtype.Rule {
	r := nmtype.Rule{Priority: priority, Action: priority}
	r.Fields[nmtype.FieldSrc] = nmtype.FieldRange{Low: low, High: high}
	for _, f := range []int{nmtype.FieldDst, nmtype.FieldSport, nmtype.FieldDport, nmtype.FieldProto, nmtype.FieldTos} {
		r.Fields[f] = wildcard()
	}
	return r
}

func TestFromISetKindAndSize(t *testing.T) {
	rules := []nmtype.Rule{oneFieldRule(0, 9, 1), oneFieldRule(10, 19, 2)}
	is := iset.Train(nmtype.FieldSrc, rules, 2)

	s := FromISet(is)
	if s.Kind() != ISet {
		t.Fatalf("Kind = %v, want ISet", s.Kind())
	}
	if s.SizeBytes() != int(is.SizeBytes()) {
		t.Fatalf("SizeBytes = %d, want %d", s.SizeBytes(), is.SizeBytes())
	}
	if s.RuleCount() != 2 {
		t.Fatalf("RuleCount = %d, want 2", s.RuleCount())
	}
	if s.ISet() != is {
		t.Fatal("ISet() did not return the wrapped pointer")
	}
	if s.RemainderClassifier() != nil {
		t.Fatal("RemainderClassifier() should be nil for an iSet subset")
	}
}

func TestFromRemainderKindAndSize(t *testing.T) {
	rc := remainder.New(remainder.CutSplit)
	rc.Build([]nmtype.Rule{oneFieldRule(0, 9, 1)})

	s := FromRemainder(rc)
	if s.Kind() != Remainder {
		t.Fatalf("Kind = %v, want Remainder", s.Kind())
	}
	if s.SizeBytes() != rc.Size() {
		t.Fatalf("SizeBytes = %d, want %d", s.SizeBytes(), rc.Size())
	}
	if s.RuleCount() != 1 {
		t.Fatalf("RuleCount = %d, want 1", s.RuleCount())
	}
	if s.ISet() != nil {
		t.Fatal("ISet() should be nil for a remainder subset")
	}
}

func TestPackDispatchesOnKind(t *testing.T) {
	rules := []nmtype.Rule{oneFieldRule(0, 9, 1)}
	is := iset.Train(nmtype.FieldSrc, rules, 1)
	rc := remainder.New(remainder.CutSplit)
	rc.Build(rules)

	var isetBuf, wantISetBuf bytes.Buffer
	if err := FromISet(is).Pack(&isetBuf); err != nil {
		t.Fatalf("Pack(iset): %v", err)
	}
	if err := iset.Pack(is, &wantISetBuf); err != nil {
		t.Fatalf("iset.Pack: %v", err)
	}
	if !bytes.Equal(isetBuf.Bytes(), wantISetBuf.Bytes()) {
		t.Fatal("Subset.Pack(iset) did not match iset.Pack directly")
	}

	var remBuf, wantRemBuf bytes.Buffer
	if err := FromRemainder(rc).Pack(&remBuf); err != nil {
		t.Fatalf("Pack(remainder): %v", err)
	}
	if err := rc.Pack(&wantRemBuf); err != nil {
		t.Fatalf("rc.Pack: %v", err)
	}
	if !bytes.Equal(remBuf.Bytes(), wantRemBuf.Bytes()) {
		t.Fatal("Subset.Pack(remainder) did not match Classifier.Pack directly")
	}
}

func TestKindString(t *testing.T) {
	if ISet.String() != "iset" {
		t.Fatalf("ISet.String() = %q, want %q", ISet.String(), "iset")
	}
	if Remainder.String() != "remainder" {
		t.Fatalf("Remainder.String() = %q, want %q", Remainder.String(), "remainder")
	}
}
