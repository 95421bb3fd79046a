package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatSpec(name string, dims ...int64) TensorSpec {
	return TensorSpec{Name: name, Shape: dims, Float32: true}
}

func TestBindContract(t *testing.T) {
	c, err := BindContract(
		[]TensorSpec{floatSpec("float_input", 1, 2)},
		[]TensorSpec{floatSpec("variable", 1, 1)},
	)
	require.NoError(t, err)
	assert.Equal(t, "float_input", c.Input.Name)
	assert.Equal(t, []int64{1, 2}, c.Input.Shape)
	assert.Equal(t, "variable", c.Output.Name)
	assert.Equal(t, []int64{1, 1}, c.Output.Shape)
}

func TestBindContract_DynamicDims(t *testing.T) {
	c, err := BindContract(
		[]TensorSpec{floatSpec("input", -1, 2)},
		[]TensorSpec{floatSpec("output", -1, 1), floatSpec("extra", -1, 3)},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, c.Input.Shape)
	assert.Equal(t, []int64{1, 1}, c.Output.Shape)
	assert.Equal(t, "output", c.Output.Name)
}

func TestBindContract_VectorOutput(t *testing.T) {
	c, err := BindContract(
		[]TensorSpec{floatSpec("input", 1, 2)},
		[]TensorSpec{floatSpec("output", -1)},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, c.Output.Shape)
}

func TestBindContract_ScalarOutput(t *testing.T) {
	c, err := BindContract(
		[]TensorSpec{floatSpec("input", 1, 2)},
		[]TensorSpec{{Name: "output", Shape: []int64{}, Float32: true}},
	)
	require.NoError(t, err)
	assert.Empty(t, c.Output.Shape)

	assert.NoError(t, c.CheckOutput(Tensor{Shape: []int64{}, Data: []float32{0.5}}))
	assert.NoError(t, c.CheckOutput(Tensor{Data: []float32{0.5}}))
	assert.Error(t, c.CheckOutput(Tensor{Shape: []int64{1}, Data: []float32{0.5}}))
	assert.Error(t, c.CheckOutput(Tensor{Shape: []int64{}}))
}

func TestBindContract_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []TensorSpec
		outputs []TensorSpec
	}{
		{"no inputs", nil, []TensorSpec{floatSpec("o", 1, 1)}},
		{"two inputs", []TensorSpec{floatSpec("a", 1, 2), floatSpec("b", 1, 2)}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"int input", []TensorSpec{{Name: "a", Shape: []int64{1, 2}}}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"rank 1 input", []TensorSpec{floatSpec("a", 2)}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"rank 3 input", []TensorSpec{floatSpec("a", 1, 1, 2)}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"three features", []TensorSpec{floatSpec("a", 1, 3)}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"batch of two", []TensorSpec{floatSpec("a", 2, 2)}, []TensorSpec{floatSpec("o", 1, 1)}},
		{"no outputs", []TensorSpec{floatSpec("a", 1, 2)}, nil},
		{"int output", []TensorSpec{floatSpec("a", 1, 2)}, []TensorSpec{{Name: "o", Shape: []int64{1, 1}}}},
		{"wide output", []TensorSpec{floatSpec("a", 1, 2)}, []TensorSpec{floatSpec("o", 1, 3)}},
		{"rank 3 output", []TensorSpec{floatSpec("a", 1, 2)}, []TensorSpec{floatSpec("o", 1, 1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BindContract(tt.inputs, tt.outputs)
			assert.ErrorIs(t, err, ErrShapeBinding)
		})
	}
}

func TestContract_CheckInput(t *testing.T) {
	c, err := BindContract([]TensorSpec{floatSpec("a", 1, 2)}, []TensorSpec{floatSpec("o", 1, 1)})
	require.NoError(t, err)

	assert.NoError(t, c.CheckInput(Tensor{Shape: []int64{1, 2}, Data: []float32{60, 50}}))
	assert.Error(t, c.CheckInput(Tensor{Shape: []int64{2, 1}, Data: []float32{60, 50}}))
	assert.Error(t, c.CheckInput(Tensor{Shape: []int64{1, 2}, Data: []float32{60}}))
}

func TestContract_CheckOutput(t *testing.T) {
	c, err := BindContract([]TensorSpec{floatSpec("a", 1, 2)}, []TensorSpec{floatSpec("o", 1, 1)})
	require.NoError(t, err)

	assert.NoError(t, c.CheckOutput(Tensor{Shape: []int64{1, 1}, Data: []float32{70}}))
	assert.Error(t, c.CheckOutput(Tensor{Shape: []int64{1}, Data: []float32{70}}))
	assert.Error(t, c.CheckOutput(Tensor{Shape: []int64{1, 1}}))
	assert.Error(t, c.CheckOutput(Tensor{}))
}
