// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params implements pipeline parameters whose values are only known when the pipeline runs.
package params

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
	"github.com/gomlx/arrayflow/pkg/support/naming"
)

// ImageParam is an input buffer of a pipeline, described by its element type and number of dimensions.
// Its mins and extents are symbolic: the Int(32) variables "<name>.min.<dim>" and "<name>.extent.<dim>",
// bound to the actual buffer when the pipeline runs.
type ImageParam struct {
	name       string
	dtype      ir.Type
	dimensions int
}

// NewImageParam creates an image parameter. If name is empty a unique one is generated.
func NewImageParam(t ir.Type, dimensions int, name string) *ImageParam {
	if !t.IsScalar() {
		diagnostics.Reportf(diagnostics.VectorType, "image parameter %q can't have the non-scalar type %s", name, t)
	}
	if dimensions < 0 || dimensions > buffers.MaxDimensions {
		diagnostics.Reportf(diagnostics.InvalidArgument, "image parameter %q must have between 0 and %d dimensions, got %d",
			name, buffers.MaxDimensions, dimensions)
	}
	if name == "" {
		name = naming.Unique("p")
	}
	return &ImageParam{name: name, dtype: t, dimensions: dimensions}
}

// Name of the parameter.
func (p *ImageParam) Name() string { return p.name }

// Type of the elements.
func (p *ImageParam) Type() ir.Type { return p.dtype }

// Dimensions returns the number of dimensions.
func (p *ImageParam) Dimensions() int { return p.dimensions }

func (p *ImageParam) checkDim(dim int) {
	if dim < 0 || dim >= p.dimensions {
		diagnostics.Raise(diagnostics.New(2, diagnostics.IndexOutOfRange,
			"dimension %d out of range for image parameter %q with %d dimensions", dim, p.name, p.dimensions))
	}
}

// Min returns the symbolic minimum coordinate of dimension dim.
func (p *ImageParam) Min(dim int) ir.Expr {
	p.checkDim(dim)
	return ir.MakeVariable(ir.Int(32), fmt.Sprintf("%s.min.%d", p.name, dim), ir.ReductionDomain{})
}

// Extent returns the symbolic extent of dimension dim.
func (p *ImageParam) Extent(dim int) ir.Expr {
	p.checkDim(dim)
	return ir.MakeVariable(ir.Int(32), fmt.Sprintf("%s.extent.%d", p.name, dim), ir.ReductionDomain{})
}

// Argument returns the pipeline argument of the parameter.
func (p *ImageParam) Argument() ir.Argument {
	return ir.Argument{Name: p.name, IsBuffer: true, Type: p.dtype}
}

// Accepts returns nil if b can be bound to the parameter: same element type and number of dimensions.
func (p *ImageParam) Accepts(b buffers.Buffer) error {
	if !b.Defined() {
		return errors.Errorf("image parameter %q can't be bound to an undefined buffer", p.name)
	}
	if b.Type() != p.dtype {
		return errors.Errorf("image parameter %q of type %s can't be bound to buffer %q of type %s",
			p.name, p.dtype, b.Name(), b.Type())
	}
	if b.Dimensions() != p.dimensions {
		return errors.Errorf("image parameter %q with %d dimensions can't be bound to buffer %q with %d dimensions",
			p.name, p.dimensions, b.Name(), b.Dimensions())
	}
	return nil
}
