package classifier

import (
	"fmt"
	"path/filepath"
	"strings"

	"expense-predictor/internal/classifier/linear"
	"expense-predictor/internal/classifier/onnx"
)

const (
	FormatAuto   = "auto"
	FormatLinear = "linear"
	FormatONNX   = "onnx"
)

// Options describe where the artifacts live.
type Options struct {
	ModelPath   string
	EncoderPath string
	// Format is linear, onnx or auto (by model file extension).
	Format string
	// RuntimeLibrary is the ONNX Runtime shared library for the onnx format.
	RuntimeLibrary string
}

// ResolveFormat returns the concrete backend for path.
func ResolveFormat(path, format string) (string, error) {
	switch format {
	case FormatLinear, FormatONNX:
		return format, nil
	case "", FormatAuto:
		switch strings.ToLower(filepath.Ext(path)) {
		case ".onnx":
			return FormatONNX, nil
		case ".json":
			return FormatLinear, nil
		}
		return "", fmt.Errorf("cannot infer model format from %q", path)
	}
	return "", fmt.Errorf("unknown model format %q", format)
}

// VectorizerPath is where the onnx backend reads its TF-IDF vectorizer:
// the model path with a .json extension.
func VectorizerPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// Load reads both artifacts. Either one missing or unreadable is an error.
func Load(opts Options) (*Predictor, error) {
	format, err := ResolveFormat(opts.ModelPath, opts.Format)
	if err != nil {
		return nil, err
	}
	enc, err := LoadEncoder(opts.EncoderPath)
	if err != nil {
		return nil, err
	}

	var model Model
	switch format {
	case FormatONNX:
		model, err = onnx.Load(onnx.Options{
			ModelPath:      opts.ModelPath,
			VectorizerPath: VectorizerPath(opts.ModelPath),
			RuntimeLibrary: opts.RuntimeLibrary,
		})
	default:
		model, err = linear.Load(opts.ModelPath)
	}
	if err != nil {
		return nil, err
	}
	return New(model, enc), nil
}
