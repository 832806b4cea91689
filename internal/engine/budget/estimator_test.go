package budget

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		ceiling       int
		expectedError error
		validate      func(t *testing.T, e *Estimator)
	}{
		{
			name:    "known model",
			model:   "gemini-1.5-flash",
			ceiling: 4096,
			validate: func(t *testing.T, e *Estimator) {
				assert.Equal(t, 8192, e.ModelMax)
				assert.Equal(t, 4096, e.EffectiveCeiling())
			},
		},
		{
			name:    "prefixed and mixed case model name",
			model:   " models/Gemini-2.0-Flash ",
			ceiling: 2048,
			validate: func(t *testing.T, e *Estimator) {
				assert.Equal(t, "gemini-2.0-flash", e.Model)
			},
		},
		{
			name:    "ceiling above model maximum is clamped",
			model:   "gpt-3.5-turbo",
			ceiling: 100000,
			validate: func(t *testing.T, e *Estimator) {
				assert.Equal(t, 4096, e.EffectiveCeiling())
			},
		},
		{name: "unknown model", model: "mystery-model", ceiling: 4096, expectedError: errors.ErrConfiguration},
		{name: "zero ceiling", model: "gpt-4o-mini", ceiling: 0, expectedError: errors.ErrConfiguration},
		{name: "negative ceiling", model: "gpt-4o-mini", ceiling: -5, expectedError: errors.ErrConfiguration},
		{name: "ceiling below one item", model: "gpt-4o-mini", ceiling: 500, expectedError: errors.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.model, tt.ceiling)
			if tt.expectedError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, e)
			}
		})
	}
}

func TestValidate_RejectsThinSafetyBuffer(t *testing.T) {
	e := &Estimator{Base: DefaultBase, PerItem: DefaultPerItem, SafetyBuffer: 0.05, ModelMax: 8192, Ceiling: 4096}
	assert.ErrorIs(t, e.Validate(), errors.ErrConfiguration)

	e.SafetyBuffer = MinSafetyBuffer
	assert.NoError(t, e.Validate())
}

func TestEstimate_Values(t *testing.T) {
	e, err := New("gpt-3.5-turbo", 4096)
	require.NoError(t, err)

	assert.Equal(t, 480, e.Estimate(0))
	assert.Equal(t, 540, e.Estimate(1))
	assert.Equal(t, 780, e.Estimate(5))
	assert.Equal(t, 1680, e.Estimate(20))
	assert.Equal(t, 4080, e.Estimate(60))
	assert.Equal(t, 4096, e.Estimate(61))
	assert.Equal(t, 4096, e.Estimate(1_000_000))
}

func TestEstimate_MonotonicAndBounded(t *testing.T) {
	for _, model := range SupportedModels() {
		limit, _ := ModelLimit(model)
		for _, ceiling := range []int{1024, 4096, 1 << 20} {
			e, err := New(model, ceiling)
			require.NoError(t, err, model)

			prev := 0
			for n := 1; n <= 5000; n++ {
				got := e.Estimate(n)
				require.GreaterOrEqual(t, got, prev, "model %s n=%d", model, n)
				require.LessOrEqual(t, got, limit, "model %s n=%d", model, n)
				require.LessOrEqual(t, got, ceiling, "model %s n=%d", model, n)
				prev = got
			}

			for _, n := range []int{1 << 40, math.MaxInt / 50, math.MaxInt/50 + 1, math.MaxInt} {
				got := e.Estimate(n)
				require.Equal(t, e.EffectiveCeiling(), got, "model %s n=%d", model, n)
				require.GreaterOrEqual(t, got, prev, "model %s n=%d", model, n)
				prev = got
			}
		}
	}
}

func TestRaw_SaturatesOnHugeCounts(t *testing.T) {
	e, err := New("gemini-1.5-flash", 4096)
	require.NoError(t, err)

	assert.Equal(t, math.MaxInt, e.Raw(math.MaxInt))
	assert.False(t, e.Fits(math.MaxInt))
}

func TestMaxBatchSize(t *testing.T) {
	e, err := New("gpt-3.5-turbo", 4096)
	require.NoError(t, err)

	n := e.MaxBatchSize()
	assert.Equal(t, 60, n)
	assert.True(t, e.Fits(n))
	assert.False(t, e.Fits(n+1))
}

func TestLowestModelLimit(t *testing.T) {
	assert.Equal(t, 4096, LowestModelLimit())
	assert.Contains(t, SupportedModels(), "gemini-1.5-flash")
}
