package model

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

type LoadOptions struct {
	// RuntimeLibrary is the path to the onnxruntime shared library.
	// Empty uses the platform default lookup.
	RuntimeLibrary string
	IntraOpThreads int
}

// onnxModel wraps a session that owns no tensors, so concurrent Run calls
// each bring their own input and get their own output.
type onnxModel struct {
	session  *ort.DynamicAdvancedSession
	contract Contract
	// ownsEnv is set when this model initialized the runtime environment.
	ownsEnv bool
}

// Load reads the artifact at path, binds it to the [1,2] float32 input and
// prepares an optimized session.
func Load(path string, opts LoadOptions) (CompiledModel, error) {
	if err := checkArtifact(path); err != nil {
		return nil, err
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if opts.RuntimeLibrary != "" {
			ort.SetSharedLibraryPath(opts.RuntimeLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to load ONNX runtime: %w", ErrLoad, err)
		}
		ownsEnv = true
	}
	release := func() {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: failed to read model graph %s: %w", ErrLoad, path, err)
	}

	contract, err := BindContract(specsOf(inputs), specsOf(outputs))
	if err != nil {
		release()
		return nil, err
	}
	// onnxruntime_go cannot wrap a rank-0 tensor: its shapes must have at
	// least one dimension.
	if len(contract.Output.Shape) == 0 {
		release()
		return nil, fmt.Errorf("%w: output %q is rank 0, which onnxruntime_go cannot read back", ErrShapeBinding, contract.Output.Name)
	}

	session, err := newSession(path, contract, opts)
	if err != nil {
		release()
		return nil, err
	}

	return &onnxModel{session: session, contract: contract, ownsEnv: ownsEnv}, nil
}

func newSession(path string, contract Contract, opts LoadOptions) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session options: %w", ErrCompile, err)
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("%w: failed to set intra-op threads: %w", ErrCompile, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{contract.Input.Name}, []string{contract.Output.Name},
		options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrCompile, err)
	}
	return session, nil
}

func checkArtifact(path string) error {
	if path == "" {
		return fmt.Errorf("%w: model path required", ErrLoad)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrLoad, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrLoad, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return f.Close()
}

func specsOf(infos []ort.InputOutputInfo) []TensorSpec {
	specs := make([]TensorSpec, len(infos))
	for i, info := range infos {
		specs[i] = TensorSpec{
			Name:    info.Name,
			Shape:   []int64(info.Dimensions.Clone()),
			Float32: info.DataType == ort.TensorElementDataTypeFloat,
		}
	}
	return specs
}

func (m *onnxModel) Contract() Contract {
	return m.contract.clone()
}

func (m *onnxModel) Run(in Tensor) (Tensor, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// A nil output is allocated by the runtime with the shape it produced.
	outputs := []ort.ArbitraryTensor{nil}
	if err := m.session.Run([]ort.ArbitraryTensor{inputTensor}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	if outputs[0] == nil {
		return Tensor{}, errors.New("inference produced no output")
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("output is %T, want float32 tensor", outputs[0])
	}

	// Tensor memory is released on return, so the result is copied out.
	data := outputTensor.GetData()
	out := Tensor{
		Shape: []int64(outputTensor.GetShape()),
		Data:  make([]float32, len(data)),
	}
	copy(out.Data, data)
	return out, nil
}

func (m *onnxModel) Close() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
	}
	if m.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
	}
	return errors.Join(errs...)
}
