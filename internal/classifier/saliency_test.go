package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

func TestNewSaliencyMap(t *testing.T) {
	grid := []float32{
		0, 0, 0,
		0, 4, 0,
		-3, 0, 0,
	}

	m, err := NewSaliencyMap(grid, 3, 3)
	require.NoError(t, err)
	require.Len(t, m.Values, normalize.Size*normalize.Size)

	var lo, hi float32 = 1, 0
	for _, v := range m.Values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	assert.GreaterOrEqual(t, lo, float32(0))
	assert.LessOrEqual(t, hi, float32(1))
	assert.InDelta(t, 1.0, hi, 1e-3)

	// The hot cell sits in the middle of the grid.
	assert.Greater(t, m.At(128, 128), m.At(5, 5))
	assert.Greater(t, m.At(128, 128), m.At(5, 250))
}

func TestNewSaliencyMap_Rejects(t *testing.T) {
	_, err := NewSaliencyMap([]float32{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrInference)

	_, err = NewSaliencyMap([]float32{1, float32(math.NaN()), 3, 4}, 2, 2)
	assert.ErrorIs(t, err, ErrInference)
}

func TestEigenProjection(t *testing.T) {
	const channels, spatial = 8, 16

	// Every channel is a scaled copy of the same spatial pattern, so the
	// first principal component reproduces that pattern.
	pattern := make([]float64, spatial)
	for s := range pattern {
		pattern[s] = float64(s % 4)
	}
	acts := make([]float32, channels*spatial)
	for c := 0; c < channels; c++ {
		for s := 0; s < spatial; s++ {
			acts[c*spatial+s] = float32(float64(c+1)*pattern[s] + 1)
		}
	}

	proj, err := EigenProjection(acts, channels, spatial)
	require.NoError(t, err)
	require.Len(t, proj, spatial)

	// Positive correlation with the planted pattern.
	for s := 1; s < spatial; s++ {
		if pattern[s] > pattern[s-1] {
			assert.Greater(t, proj[s], proj[s-1], "position %d", s)
		}
	}
	assert.InDelta(t, proj[0], proj[4], 1e-4)

	_, err = EigenProjection(acts[:10], channels, spatial)
	assert.ErrorIs(t, err, ErrInference)
}

func TestEigenProjection_Deterministic(t *testing.T) {
	acts := make([]float32, 4*9)
	for i := range acts {
		acts[i] = float32((i*37)%11) / 11
	}
	a, err := EigenProjection(acts, 4, 9)
	require.NoError(t, err)
	b, err := EigenProjection(acts, 4, 9)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
