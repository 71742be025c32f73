package iset

import (
	"bytes"
	"testing"

	"github.com/theojepsen/nuevomatch/nmtype"
)

func wildcard() nmtype.FieldRange { return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit} }

func srcRule(low, high uint32, priority int32) nmtype.Rule {
	r := nmtype.Rule{Priority: priority, Action: priority}
	r.Fields[nmtype.FieldSrc] = nmtype.FieldRange{Low: low, High: high}
	for _, f := range []int{nmtype.FieldDst, nmtype.FieldSport, nmtype.FieldDport, nmtype.FieldProto, nmtype.FieldTos} {
		r.Fields[f] = wildcard()
	}
	return r
}

func header(src uint32) *nmtype.PacketHeader {
	var h nmtype.PacketHeader
	h[nmtype.FieldSrc] = src
	return &h
}

func TestTrainFieldIndexAndSize(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1), srcRule(10, 19, 2), srcRule(20, 29, 3)}
	s := Train(nmtype.FieldSrc, rules, 2)

	if s.FieldIndex() != nmtype.FieldSrc {
		t.Fatalf("FieldIndex = %d, want %d", s.FieldIndex(), nmtype.FieldSrc)
	}
	if s.Size() != 3 {
		t.Fatalf("Size = %d, want 3", s.Size())
	}
	if s.SizeBytes() == 0 {
		t.Fatal("SizeBytes = 0, want a positive estimate")
	}
}

func TestDoValidationAtTrainingKeys(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1), srcRule(10, 19, 2), srcRule(20, 29, 3)}
	s := Train(nmtype.FieldSrc, rules, 2)

	// Every rule's own Low boundary is an exact training key, so the
	// validation table at that position must hold that rule's action
	// regardless of how the model happened to be fit.
	for pos, want := range []int32{1, 2, 3} {
		action := s.DoValidation(header(rules[pos].Fields[nmtype.FieldSrc].Low), pos)
		if action.Action != want {
			t.Fatalf("DoValidation(pos=%d) = %+v, want action %d", pos, action, want)
		}
	}
}

func TestDoValidationRejectsFieldMismatch(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1)}
	s := Train(nmtype.FieldSrc, rules, 1)

	// pos 0 holds the rule for src in [0,9]; validating against a
	// header with a different field (dst) set but src left at zero
	// still matches since dst is wildcarded in this rule, so instead
	// check that a header failing the rule's own field fails.
	h := header(99) // outside [0,9]
	if s.DoValidation(h, 0).IsMatch() {
		t.Fatal("DoValidation matched a header outside the rule's own range")
	}
}

func TestDoValidationOutOfRangePosition(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1)}
	s := Train(nmtype.FieldSrc, rules, 1)

	if s.DoValidation(header(5), -1).IsMatch() {
		t.Fatal("DoValidation(-1) should be NoMatch")
	}
	if s.DoValidation(header(5), 5).IsMatch() {
		t.Fatal("DoValidation(out of range) should be NoMatch")
	}
}

func TestExtractRulesReturnsEveryTrainedRule(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1), srcRule(10, 19, 2)}
	s := Train(nmtype.FieldSrc, rules, 2)

	extracted := s.ExtractRules()
	if len(extracted) != 2 {
		t.Fatalf("ExtractRules returned %d rules, want 2", len(extracted))
	}
}

func TestRearrangeFieldIndices(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1)}
	s := Train(nmtype.FieldSrc, rules, 1)

	s.RearrangeFieldIndices([]uint32{nmtype.FieldDst, nmtype.FieldSrc})
	if s.FieldIndex() != 1 {
		t.Fatalf("FieldIndex after rearrange = %d, want 1", s.FieldIndex())
	}
}

func TestPackLoadRoundTrip(t *testing.T) {
	rules := []nmtype.Rule{srcRule(0, 9, 1), srcRule(10, 19, 2), srcRule(20, 29, 3), srcRule(30, 39, 4)}
	s := Train(nmtype.FieldSrc, rules, 2)

	var buf bytes.Buffer
	if err := Pack(s, &buf); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.FieldIndex() != s.FieldIndex() {
		t.Fatalf("loaded FieldIndex = %d, want %d", loaded.FieldIndex(), s.FieldIndex())
	}
	if loaded.Size() != s.Size() {
		t.Fatalf("loaded Size = %d, want %d", loaded.Size(), s.Size())
	}
	for pos, rule := range rules {
		got := loaded.DoValidation(header(rule.Fields[nmtype.FieldSrc].Low), pos)
		if got.Action != rule.Action {
			t.Fatalf("loaded DoValidation(pos=%d) = %+v, want action %d", pos, got, rule.Action)
		}
	}
}
