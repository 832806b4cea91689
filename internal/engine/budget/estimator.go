// Package budget estimates the output-token cost of one batch call and the
// ceiling that call may request.
package budget

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"comment-insights/internal/common/errors"
)

const (
	DefaultBase         = 400
	DefaultPerItem      = 50
	DefaultSafetyBuffer = 0.2
	MinSafetyBuffer     = 0.1
)

// modelOutputLimits holds the hard max-output-token value each supported model accepts.
var modelOutputLimits = map[string]int{
	"gemini-1.5-flash": 8192,
	"gemini-1.5-pro":   8192,
	"gemini-2.0-flash": 8192,
	"gemini-2.5-flash": 65536,
	"gemini-2.5-pro":   65536,
	"gpt-4o":           16384,
	"gpt-4o-mini":      16384,
	"gpt-3.5-turbo":    4096,
}

// ModelLimit returns the hard output maximum for model.
func ModelLimit(model string) (int, bool) {
	limit, ok := modelOutputLimits[normalizeModel(model)]
	return limit, ok
}

// SupportedModels lists the known model names in sorted order.
func SupportedModels() []string {
	out := make([]string, 0, len(modelOutputLimits))
	for m := range modelOutputLimits {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// LowestModelLimit is the smallest hard maximum across supported models.
func LowestModelLimit() int {
	lowest := math.MaxInt
	for _, limit := range modelOutputLimits {
		if limit < lowest {
			lowest = limit
		}
	}
	return lowest
}

func normalizeModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.TrimPrefix(m, "models/")
}

// Estimator maps a batch size to a token budget:
//
//	ceil((Base + PerItem*n) * (1 + SafetyBuffer)), clamped to min(Ceiling, ModelMax)
type Estimator struct {
	Model        string
	Base         int
	PerItem      int
	SafetyBuffer float64
	ModelMax     int
	Ceiling      int
}

// New builds an estimator with default coefficients for model and a caller
// supplied per-call ceiling.
func New(model string, ceiling int) (*Estimator, error) {
	limit, ok := ModelLimit(model)
	if !ok {
		return nil, errors.NewConfigurationError(fmt.Sprintf(
			"unknown model %q (supported: %s)", model, strings.Join(SupportedModels(), ", ")))
	}

	e := &Estimator{
		Model:        normalizeModel(model),
		Base:         DefaultBase,
		PerItem:      DefaultPerItem,
		SafetyBuffer: DefaultSafetyBuffer,
		ModelMax:     limit,
		Ceiling:      ceiling,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate reports an unusable coefficient or ceiling combination.
func (e *Estimator) Validate() error {
	switch {
	case e.Ceiling <= 0:
		return errors.NewConfigurationError(fmt.Sprintf("token ceiling must be positive, got %d", e.Ceiling))
	case e.ModelMax <= 0:
		return errors.NewConfigurationError("model hard maximum must be positive")
	case e.Base < 0 || e.PerItem <= 0:
		return errors.NewConfigurationError("estimator coefficients must be positive")
	case e.SafetyBuffer < MinSafetyBuffer:
		return errors.NewConfigurationError(fmt.Sprintf(
			"safety buffer %.2f is below the %.2f minimum", e.SafetyBuffer, MinSafetyBuffer))
	case e.Raw(1) > e.EffectiveCeiling():
		return errors.NewConfigurationError(fmt.Sprintf(
			"token ceiling %d cannot fit a single item (needs %d)", e.EffectiveCeiling(), e.Raw(1)))
	}
	return nil
}

// EffectiveCeiling is the smaller of the configured ceiling and the model maximum.
func (e *Estimator) EffectiveCeiling() int {
	if e.Ceiling < e.ModelMax {
		return e.Ceiling
	}
	return e.ModelMax
}

// Raw is the buffered estimate before clamping.
func (e *Estimator) Raw(itemCount int) int {
	if itemCount < 0 {
		itemCount = 0
	}
	// float64 so huge counts saturate instead of wrapping
	v := (float64(e.Base) + float64(e.PerItem)*float64(itemCount)) * (1 + e.SafetyBuffer)
	if v >= float64(math.MaxInt) {
		return math.MaxInt
	}
	// absorb float noise such as 1400*1.2 = 1680.0000000000002
	return int(math.Ceil(v - 1e-6))
}

// Estimate returns the budget to request for itemCount items. The result is
// non-decreasing in itemCount and never above EffectiveCeiling.
func (e *Estimator) Estimate(itemCount int) int {
	raw := e.Raw(itemCount)
	if ceiling := e.EffectiveCeiling(); raw > ceiling {
		return ceiling
	}
	return raw
}

// Fits reports whether itemCount items fit without clamping.
func (e *Estimator) Fits(itemCount int) bool {
	return e.Raw(itemCount) <= e.EffectiveCeiling()
}

// MaxBatchSize is the largest item count whose unclamped estimate fits the
// effective ceiling.
func (e *Estimator) MaxBatchSize() int {
	ceiling := e.EffectiveCeiling()
	n := int((float64(ceiling)/(1+e.SafetyBuffer) - float64(e.Base)) / float64(e.PerItem))
	if n < 0 {
		n = 0
	}
	for n > 0 && !e.Fits(n) {
		n--
	}
	for e.Fits(n + 1) {
		n++
	}
	return n
}
