package model

import (
	"fmt"
	"slices"
)

// BindContract checks the declared inputs and outputs of a model against the
// fixed [1,2] float32 input and a single-element float32 output: a scalar,
// [1] or [1,1]. Dynamic dimensions are resolved to the bound values. Only the
// first output is used.
func BindContract(inputs, outputs []TensorSpec) (Contract, error) {
	if len(inputs) != 1 {
		return Contract{}, fmt.Errorf("%w: expected exactly 1 input, model declares %d", ErrShapeBinding, len(inputs))
	}
	in := inputs[0]
	if !in.Float32 {
		return Contract{}, fmt.Errorf("%w: input %q is not float32", ErrShapeBinding, in.Name)
	}
	if len(in.Shape) != len(InputShape) {
		return Contract{}, fmt.Errorf("%w: input %q has rank %d, want %d", ErrShapeBinding, in.Name, len(in.Shape), len(InputShape))
	}
	for i, d := range in.Shape {
		if d >= 0 && d != InputShape[i] {
			return Contract{}, fmt.Errorf("%w: input %q shape %v incompatible with %v", ErrShapeBinding, in.Name, in.Shape, InputShape)
		}
	}

	if len(outputs) == 0 {
		return Contract{}, fmt.Errorf("%w: model declares no outputs", ErrShapeBinding)
	}
	out := outputs[0]
	if !out.Float32 {
		return Contract{}, fmt.Errorf("%w: output %q is not float32", ErrShapeBinding, out.Name)
	}
	if len(out.Shape) > 2 {
		return Contract{}, fmt.Errorf("%w: output %q has rank %d, want at most 2", ErrShapeBinding, out.Name, len(out.Shape))
	}
	outShape := make([]int64, len(out.Shape))
	for i, d := range out.Shape {
		if d < 0 {
			d = 1
		}
		outShape[i] = d
	}
	if shapeSize(outShape) != 1 {
		return Contract{}, fmt.Errorf("%w: output %q shape %v is not a single value", ErrShapeBinding, out.Name, out.Shape)
	}

	return Contract{
		Input:  TensorSpec{Name: in.Name, Shape: slices.Clone(InputShape), Float32: true},
		Output: TensorSpec{Name: out.Name, Shape: outShape, Float32: true},
	}, nil
}

func (c Contract) clone() Contract {
	c.Input.Shape = slices.Clone(c.Input.Shape)
	c.Output.Shape = slices.Clone(c.Output.Shape)
	return c
}

// CheckInput verifies a tensor matches the bound input.
func (c Contract) CheckInput(t Tensor) error {
	if !slices.Equal(t.Shape, c.Input.Shape) {
		return fmt.Errorf("input shape %v, want %v", t.Shape, c.Input.Shape)
	}
	if int64(len(t.Data)) != t.Size() {
		return fmt.Errorf("input has %d values for shape %v", len(t.Data), t.Shape)
	}
	return nil
}

// CheckOutput verifies a tensor matches the bound output.
func (c Contract) CheckOutput(t Tensor) error {
	if !slices.Equal(t.Shape, c.Output.Shape) {
		return fmt.Errorf("output shape %v, want %v", t.Shape, c.Output.Shape)
	}
	if int64(len(t.Data)) != t.Size() || len(t.Data) == 0 {
		return fmt.Errorf("output has %d values for shape %v", len(t.Data), t.Shape)
	}
	return nil
}
