package remainder

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theojepsen/nuevomatch/nmtype"
)

func anyRange() nmtype.FieldRange {
	return nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}
}

func makeRules(n int) []nmtype.Rule {
	rules := make([]nmtype.Rule, n)
	for i := 0; i < n; i++ {
		rules[i] = nmtype.Rule{
			Priority: int32(i),
			Action:   int32(i),
			Fields: [nmtype.FieldCount]nmtype.FieldRange{
				{Low: uint32(i * 10), High: uint32(i*10 + 9)},
				anyRange(), anyRange(), anyRange(), anyRange(), anyRange(),
			},
		}
	}
	return rules
}

func bruteForce(rules []nmtype.Rule, h *nmtype.PacketHeader) nmtype.ActionOutput {
	var best nmtype.ActionOutput = nmtype.NoMatch
	for _, r := range rules {
		if r.Matches(h) && r.ActionOutput().Better(best) {
			best = r.ActionOutput()
		}
	}
	return best
}

func TestClassifyAgreesWithBruteForce(t *testing.T) {
	for _, kind := range []Kind{CutSplit, TupleMerge} {
		rules := makeRules(50)
		c := New(kind)
		c.Build(rules)

		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 200; i++ {
			h := &nmtype.PacketHeader{uint32(rng.Intn(600)), 0, 0, 0, 0, 0}
			batch := nmtype.PacketBatch{h}
			got := c.Classify(batch, nmtype.NoMatchBatch())
			want := bruteForce(rules, h)
			require.Equal(t, want, got[0], "kind=%v header=%v", kind, h)
		}
	}
}

func TestClassifyNeverWorsensCurrent(t *testing.T) {
	rules := makeRules(10)
	c := New(CutSplit)
	c.Build(rules)

	h := &nmtype.PacketHeader{55, 0, 0, 0, 0, 0} // matches only the priority-5 rule
	current := nmtype.ActionBatch{{Priority: -1, Action: -1}}
	current[0] = nmtype.ActionOutput{Priority: 2, Action: 999} // pretend an iSet already found a better-ranked match
	got := c.Classify(nmtype.PacketBatch{h}, current)
	require.Equal(t, current[0], got[0])
}

func TestClassifySkipsNilLane(t *testing.T) {
	rules := makeRules(5)
	c := New(TupleMerge)
	c.Build(rules)

	got := c.Classify(nmtype.PacketBatch{nil}, nmtype.NoMatchBatch())
	require.Equal(t, nmtype.NoMatch, got[0])
}

func TestPackLoadRoundTrip(t *testing.T) {
	rules := makeRules(20)
	c := New(TupleMerge)
	c.Build(rules)

	var buf bytes.Buffer
	require.NoError(t, c.Pack(&buf))

	loaded := New(CutSplit) // Load must overwrite the placeholder kind too
	require.NoError(t, loaded.Load(&buf))
	require.Equal(t, TupleMerge, loaded.Type())

	h := &nmtype.PacketHeader{123, 0, 0, 0, 0, 0}
	want := c.Classify(nmtype.PacketBatch{h}, nmtype.NoMatchBatch())
	got := loaded.Classify(nmtype.PacketBatch{h}, nmtype.NoMatchBatch())
	require.Equal(t, want, got)
}

func TestEncodeDecodeRuleListRoundTrip(t *testing.T) {
	rules := makeRules(7)

	var buf bytes.Buffer
	require.NoError(t, EncodeRuleList(&buf, rules))

	got, err := DecodeRuleList(&buf)
	require.NoError(t, err)
	require.Equal(t, rules, got)
}

func TestEncodeDecodeRuleListEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRuleList(&buf, nil))

	got, err := DecodeRuleList(&buf)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("cutsplit")
	require.NoError(t, err)
	require.Equal(t, CutSplit, k)

	k, err = ParseKind("tuplemerge")
	require.NoError(t, err)
	require.Equal(t, TupleMerge, k)

	_, err = ParseKind("bogus")
	require.Error(t, err)
}
