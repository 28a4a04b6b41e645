// Package classifier maps free-text expense descriptions to category names
// using a pre-trained model and a label encoder loaded once at start up.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInference    = errors.New("inference failed")
	ErrUnknownLabel = errors.New("unknown label")
)

type (
	// Model scores a description and returns the model's internal label.
	Model interface {
		PredictLabel(ctx context.Context, text string) (int, error)
	}

	// Encoder translates internal labels into category names.
	Encoder interface {
		Decode(label int) (string, error)
		Classes() []string
	}
)

// Predictor composes a Model and an Encoder. Both are read-only after
// construction, so a Predictor may be shared by concurrent requests.
type Predictor struct {
	model   Model
	encoder Encoder
}

func New(model Model, encoder Encoder) *Predictor {
	return &Predictor{model: model, encoder: encoder}
}

// Predict returns the category for description.
func (p *Predictor) Predict(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("%w: empty input", ErrInference)
	}
	label, err := p.model.PredictLabel(ctx, description)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	category, err := p.encoder.Decode(label)
	if err != nil {
		if errors.Is(err, ErrUnknownLabel) {
			return "", err
		}
		return "", fmt.Errorf("%w: label %d: %v", ErrUnknownLabel, label, err)
	}
	if category == "" {
		return "", fmt.Errorf("%w: label %d decodes to empty category", ErrUnknownLabel, label)
	}
	return category, nil
}

// Categories lists every category the encoder knows, in label order.
func (p *Predictor) Categories() []string {
	return p.encoder.Classes()
}

// Close releases model resources when the model holds any.
func (p *Predictor) Close() error {
	if c, ok := p.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
