package model

import "errors"

// Startup failures. Any of these means the service cannot start.
var (
	ErrLoad         = errors.New("model load failed")
	ErrShapeBinding = errors.New("model shape binding failed")
	ErrCompile      = errors.New("model compilation failed")
)

// ErrEvaluation is a per-request forward pass failure.
var ErrEvaluation = errors.New("model evaluation failed")
