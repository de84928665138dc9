package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestSameSeedSameDraws(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.TimeBetweenBlocks(0.001), b.TimeBetweenBlocks(0.001))
		assert.Equal(t, a.Uniform(), b.Uniform())
		assert.Equal(t, a.Intn(10), b.Intn(10))
	}
	assert.Equal(t, a.Counts(), b.Counts())
	assert.NotEqual(t, New(1).Uniform(), New(2).Uniform())
}

func TestStreamsAreIndependent(t *testing.T) {
	a, b := New(7), New(7)
	a.Normal()
	a.Normal()
	assert.Equal(t, a.TimeBetweenBlocks(0.01), b.TimeBetweenBlocks(0.01))
}

func TestTimeBetweenBlocksMean(t *testing.T) {
	r := New(1)
	xs := make([]float64, 20000)
	for i := range xs {
		xs[i] = float64(r.TimeBetweenBlocks(1.0 / 600))
	}
	assert.InDelta(t, 600, stat.Mean(xs, nil), 20)
	assert.Equal(t, maxBlockDelay, r.TimeBetweenBlocks(0))
}

func TestSlotUniform(t *testing.T) {
	assert.Equal(t, SlotUniform(5, 12), SlotUniform(5, 12))
	assert.NotEqual(t, SlotUniform(5, 12), SlotUniform(5, 13))
	u := SlotUniform(9, 0)
	assert.True(t, u >= 0 && u < 1)
}

func TestDelaySampler(t *testing.T) {
	fixed, err := NewDelaySampler("fixed", []float64{25}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), fixed.Sample())

	r := New(3)
	norm, err := NewDelaySampler("norm", []float64{100, 10}, r.Source("link"))
	require.NoError(t, err)
	xs := make([]float64, 5000)
	for i := range xs {
		xs[i] = float64(norm.Sample())
	}
	assert.InDelta(t, 100, stat.Mean(xs, nil), 2)

	floor, err := NewDelaySampler("norm", []float64{-50, 1}, r.Source("floor"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), floor.Sample())
}

func TestGetDist(t *testing.T) {
	_, err := GetDist("exp", nil, New(1).Source("x"))
	assert.Error(t, err)

	_, err = GetDist("cauchy", []float64{1, 2}, New(1).Source("x"))
	assert.ErrorIs(t, err, ErrUnknownDistribution)

	dist, err := GetDist("uniform", []float64{2, 3}, New(1).Source("x"))
	require.NoError(t, err)
	v := dist.Rand()
	assert.True(t, v >= 2 && v < 3)
}
