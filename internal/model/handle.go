package model

import (
	"errors"
	"fmt"
)

// CompiledModel is a model bound to a fixed contract and ready to run.
// Run must be safe for concurrent use.
type CompiledModel interface {
	Contract() Contract
	Run(input Tensor) (Tensor, error)
	Close() error
}

// Handle is the read-only view of the compiled model shared by every
// request. It is built once at startup and never changed afterwards.
type Handle struct {
	model    CompiledModel
	contract Contract
}

func NewHandle(m CompiledModel) (*Handle, error) {
	if m == nil {
		return nil, errors.New("compiled model required")
	}
	return &Handle{
		model:    m,
		contract: m.Contract().clone(),
	}, nil
}

// Contract returns a copy of the bound tensor contract.
func (h *Handle) Contract() Contract {
	return h.contract.clone()
}

// Evaluate runs one forward pass. Shapes are checked on the way in and on
// the way out; a mismatch is reported as ErrEvaluation.
func (h *Handle) Evaluate(input Tensor) (out Tensor, err error) {
	if err := h.contract.CheckInput(input); err != nil {
		return Tensor{}, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = Tensor{}, fmt.Errorf("%w: panic: %v", ErrEvaluation, r)
		}
	}()

	out, err = h.model.Run(input)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	if err := h.contract.CheckOutput(out); err != nil {
		return Tensor{}, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	return out, nil
}

// Close releases the model. Only called on process shutdown.
func (h *Handle) Close() error {
	return h.model.Close()
}
