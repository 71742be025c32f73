package nmtype

import "testing"

func TestActionOutputIsMatch(t *testing.T) {
	if NoMatch.IsMatch() {
		t.Fatal("NoMatch.IsMatch() = true, want false")
	}
	if !(ActionOutput{Priority: 0, Action: 1}).IsMatch() {
		t.Fatal("priority-0 output should be a match")
	}
}

func TestActionOutputBetter(t *testing.T) {
	high := ActionOutput{Priority: 1, Action: 1}
	low := ActionOutput{Priority: 5, Action: 2}

	if !high.Better(low) {
		t.Fatal("lower priority value should rank better")
	}
	if low.Better(high) {
		t.Fatal("higher priority value should not rank better")
	}
	if NoMatch.Better(high) {
		t.Fatal("a non-match should never rank better than a match")
	}
	if !high.Better(NoMatch) {
		t.Fatal("a match should always rank better than a non-match")
	}
}

func TestNoMatchBatch(t *testing.T) {
	b := NoMatchBatch()
	for i, out := range b {
		if out != NoMatch {
			t.Fatalf("lane %d = %+v, want NoMatch", i, out)
		}
	}
}

func TestFieldRangeMatch(t *testing.T) {
	r := FieldRange{Low: 10, High: 20}
	cases := []struct {
		value uint32
		want  bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{20, true},
		{21, false},
	}
	for _, c := range cases {
		if got := r.Match(c.value); got != c.want {
			t.Fatalf("Match(%d) = %v, want %v", c.value, got, c.want)
		}
	}
}

func TestRuleMatchesRequiresEveryField(t *testing.T) {
	wide := FieldRange{Low: 0, High: NoFieldLimit}
	rule := Rule{
		Priority: 1,
		Action:   1,
		Fields:   [FieldCount]FieldRange{{Low: 100, High: 200}, wide, wide, wide, wide, wide},
	}

	inRange := &PacketHeader{150, 0, 0, 0, 0, 0}
	if !rule.Matches(inRange) {
		t.Fatal("expected match: src within range, all other fields wildcarded")
	}

	outOfRange := &PacketHeader{50, 0, 0, 0, 0, 0}
	if rule.Matches(outOfRange) {
		t.Fatal("expected no match: src outside range")
	}
}

func TestRuleActionOutput(t *testing.T) {
	rule := Rule{Priority: 7, Action: 42}
	out := rule.ActionOutput()
	if out.Priority != 7 || out.Action != 42 {
		t.Fatalf("ActionOutput() = %+v, want {7 42}", out)
	}
}

func TestPacketHeaderField(t *testing.T) {
	h := &PacketHeader{1, 2, 3, 4, 5, 6}
	if h.Field(FieldDport) != 4 {
		t.Fatalf("Field(FieldDport) = %d, want 4", h.Field(FieldDport))
	}
}
