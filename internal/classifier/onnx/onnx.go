// Package onnx scores TF-IDF vectors with a classifier graph run through
// ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"expense-predictor/internal/classifier/linear"
)

// ortEnv guards the process-wide runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Options locate the graph, its vectorizer and the runtime library.
type Options struct {
	ModelPath      string
	VectorizerPath string
	// RuntimeLibrary defaults to libonnxruntime.so next to the model.
	RuntimeLibrary string
	Threads        int
}

// Model holds one inference session. Run is safe for concurrent callers.
type Model struct {
	session    *ort.DynamicAdvancedSession
	vec        *linear.Vectorizer
	inputName  string
	outputName string
}

func Load(opts Options) (*Model, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("onnx: model: %w", err)
	}
	vec, err := linear.LoadVectorizer(opts.VectorizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: vectorizer: %w", err)
	}

	libPath := opts.RuntimeLibrary
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(opts.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	inputName, err := pickInput(inputs, int64(vec.NumFeatures()))
	if err != nil {
		return nil, err
	}
	outputName, err := pickLabelOutput(outputs)
	if err != nil {
		return nil, err
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}
	if err := sessOpts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("onnx: intra-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, []string{inputName}, []string{outputName}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	return &Model{session: session, vec: vec, inputName: inputName, outputName: outputName}, nil
}

// pickInput expects a single float tensor shaped [batch, n_features].
func pickInput(inputs []ort.InputOutputInfo, nFeatures int64) (string, error) {
	if len(inputs) != 1 {
		return "", fmt.Errorf("onnx: expected 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return "", fmt.Errorf("onnx: input %q is %v, want float", in.Name, in.DataType)
	}
	if len(in.Dimensions) != 2 {
		return "", fmt.Errorf("onnx: input %q has shape %v, want [batch, features]", in.Name, in.Dimensions)
	}
	if d := in.Dimensions[1]; d > 0 && d != nFeatures {
		return "", fmt.Errorf("onnx: input %q takes %d features, vectorizer yields %d", in.Name, d, nFeatures)
	}
	return in.Name, nil
}

// pickLabelOutput prefers an output named "label", then the first int64 one.
func pickLabelOutput(outputs []ort.InputOutputInfo) (string, error) {
	for _, out := range outputs {
		if out.Name == "label" && out.DataType == ort.TensorElementDataTypeInt64 {
			return out.Name, nil
		}
	}
	for _, out := range outputs {
		if out.DataType == ort.TensorElementDataTypeInt64 {
			return out.Name, nil
		}
	}
	return "", fmt.Errorf("onnx: model has no int64 label output")
}

func (m *Model) PredictLabel(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x := m.vec.Dense(text)

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(x))), x)
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("onnx: inference failed: %w", err)
	}
	data := out.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("onnx: empty label output")
	}
	return int(data[0]), nil
}

func (m *Model) Close() error {
	return m.session.Destroy()
}
