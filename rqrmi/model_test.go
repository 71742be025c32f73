package rqrmi

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func trainedModel(t *testing.T) (*Model, []uint32, []float64) {
	t.Helper()
	keys := make([]uint32, 0, 200)
	positions := make([]float64, 0, 200)
	for i := 0; i < 200; i++ {
		keys = append(keys, uint32(i*37))
	}
	for i, k := range keys {
		_ = k
		positions = append(positions, float64(i)/float64(len(keys)-1))
	}
	m := Train(keys, positions, 8)
	return m, keys, positions
}

func TestInferRespectsTrainedErrorBound(t *testing.T) {
	m, keys, positions := trainedModel(t)
	infos := m.Infer(keys)
	require.Len(t, infos, len(keys))
	for i, info := range infos {
		require.True(t, info.Valid)
		require.Equal(t, keys[i], info.Input)
		leaf := m.leaves[m.bucketOf(keys[i])]
		predicted := leaf.model.predict(float64(keys[i]))
		require.InDelta(t, predicted, info.Output, 1e-9)
		residual := math.Abs(positions[i] - predicted)
		require.LessOrEqual(t, residual, float64(leaf.errorBound))
	}
}

func TestInferClampsOutputToUnitInterval(t *testing.T) {
	m := &Model{
		globalMin: 0,
		globalMax: 100,
		leaves:    []leaf{{model: LinearModel{Slope: 10, Intercept: -5}}},
	}
	infos := m.Infer([]uint32{0, 50, 100})
	for _, info := range infos {
		require.GreaterOrEqual(t, info.Output, 0.0)
		require.LessOrEqual(t, info.Output, 1.0)
	}
}

func TestPackLoadRoundTrip(t *testing.T) {
	m, keys, _ := trainedModel(t)
	var buf bytes.Buffer
	require.NoError(t, m.Pack(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	require.Equal(t, m.Fanout(), loaded.Fanout())

	want := m.Infer(keys)
	got := loaded.Infer(keys)
	require.Equal(t, want, got)
}

func TestTrainEmptyKeys(t *testing.T) {
	m := Train(nil, nil, 4)
	require.Equal(t, 4, m.Fanout())
	require.Empty(t, m.Infer([]uint32{1, 2, 3})[0].Output)
}
