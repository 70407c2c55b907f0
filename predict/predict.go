// Package predict holds the prediction step of the detector. No model ships
// with the service: Placeholder answers every input with the same verdict.
package predict

import (
	"context"
	"math"
)

const (
	LabelReal = "Real"
	LabelFake = "Fake"

	PlaceholderLabel      = LabelReal
	PlaceholderConfidence = 85.5
)

// Result is a single verdict.
type Result struct {
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Predictor classifies the media stored at path.
type Predictor interface {
	Predict(ctx context.Context, path string) (Result, error)
}

type placeholder struct{}

// NewPlaceholder returns a Predictor that never looks at its input.
func NewPlaceholder() Predictor {
	return placeholder{}
}

func (placeholder) Predict(ctx context.Context, _ string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Label: PlaceholderLabel, Confidence: PlaceholderConfidence}, nil
}

// Overall folds per-frame verdicts into one: the majority label (Real wins a
// tie) and the mean confidence rounded to two places. An empty input yields
// the zero Result.
func Overall(results []Result) Result {
	if len(results) == 0 {
		return Result{}
	}
	var fake int
	var sum float64
	for _, r := range results {
		if r.Label == LabelFake {
			fake++
		}
		sum += r.Confidence
	}
	label := LabelReal
	if fake*2 > len(results) {
		label = LabelFake
	}
	return Result{
		Label:      label,
		Confidence: math.Round(sum/float64(len(results))*100) / 100,
	}
}
