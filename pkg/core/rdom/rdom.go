// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package rdom implements reduction domains as used in pipeline definitions: RDom, a multidimensional
// iteration space, and RVar, one of its dimensions.
//
// An RDom is created from explicit (min, extent) ranges, from the shape of a Buffer or an image parameter,
// or from an existing ir.ReductionDomain. Its first four dimensions are also available as the fields
// X, Y, Z and W; all of them through RDom.At.
//
// Variables of a domain are named "<domain name>.<suffix>$r": the first four dimensions use the suffixes
// x, y, z and w, the following ones their position (4, 5, ...). The "$r" marker keeps them apart from pure
// variables with the same names.
package rdom

import (
	"strconv"
	"strings"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
	"github.com/gomlx/arrayflow/pkg/support/naming"
)

// axisNames are the conventional names of the first four dimensions.
var axisNames = [4]string{"x", "y", "z", "w"}

// reductionMarker is appended to the names of reduction variables.
const reductionMarker = "$r"

// dimensionSuffix returns the suffix of the name of dimension i of a domain.
func dimensionSuffix(i int) string {
	if i < len(axisNames) {
		return axisNames[i] + reductionMarker
	}
	return strconv.Itoa(i) + reductionMarker
}

// Range is the (min, extent) of one dimension of a reduction domain.
type Range struct {
	Min, Extent ir.Expr
}

// R returns a Range from minimum and extent, each either an ir.Expr or a Go integer.
func R(minimum, extent any) Range {
	return Range{Min: toExpr(minimum), Extent: toExpr(extent)}
}

// Ranges returns one Range per (min, extent) pair of bounds, each either an ir.Expr or a Go integer.
// E.g. Ranges(0, 3, 0, 4) for a 3x4 domain.
func Ranges(bounds ...any) []Range {
	if len(bounds)%2 != 0 {
		diagnostics.Reportf(diagnostics.InvalidArgument, "Ranges takes (min, extent) pairs, got %d values", len(bounds))
	}
	ranges := make([]Range, len(bounds)/2)
	for i := range ranges {
		ranges[i] = R(bounds[2*i], bounds[2*i+1])
	}
	return ranges
}

func toExpr(v any) ir.Expr {
	switch x := v.(type) {
	case ir.Expr:
		return x
	case int:
		return ir.MakeInt(x)
	case int32:
		return ir.MakeInt(x)
	case int64:
		return ir.MakeInt(x)
	}
	diagnostics.Reportf(diagnostics.InvalidArgument, "reduction domain bounds must be an ir.Expr or an integer, got %T", v)
	return nil
}

// RDom is a reduction domain with convenience access to its first four dimensions.
type RDom struct {
	dom ir.ReductionDomain

	// X, Y, Z, W are the first four dimensions. If the domain has fewer dimensions the remaining ones are free
	// placeholders named "<domain name>.<axis>".
	X, Y, Z, W RVar
}

// New creates a reduction domain with one dimension per range. If name is empty a unique one is generated.
//
// Mins and extents are converted to Int(32).
func New(name string, ranges ...Range) RDom {
	if len(ranges) == 0 {
		diagnostics.Reportf(diagnostics.InvalidArgument, "reduction domain %q needs at least one dimension", name)
	}
	if name == "" {
		name = naming.Unique("r")
	}
	vars := make([]ir.ReductionVariable, len(ranges))
	for i, r := range ranges {
		vars[i] = ir.ReductionVariable{
			Var:    name + "." + dimensionSuffix(i),
			Min:    ir.CastTo(ir.Int(32), r.Min),
			Extent: ir.CastTo(ir.Int(32), r.Extent),
		}
	}
	r := RDom{dom: ir.NewReductionDomain(vars)}
	r.initVars(name)
	return r
}

// Shaped is an array-shaped source a reduction domain can be created from, e.g. an image parameter.
type Shaped interface {
	Name() string
	Dimensions() int
	Min(dim int) ir.Expr
	Extent(dim int) ir.Expr
}

// FromShaped creates a reduction domain iterating over all the elements of s, with one dimension per
// dimension of s. The domain is named after s.
func FromShaped(s Shaped) RDom {
	name := s.Name()
	vars := make([]ir.ReductionVariable, s.Dimensions())
	for i := range vars {
		vars[i] = ir.ReductionVariable{
			Var:    name + "." + dimensionSuffix(i),
			Min:    s.Min(i),
			Extent: s.Extent(i),
		}
	}
	r := RDom{dom: ir.NewReductionDomain(vars)}
	r.initVars(name)
	return r
}

// bufferSource adapts a Buffer to Shaped.
type bufferSource struct {
	b buffers.Buffer
}

func (s bufferSource) Name() string           { return s.b.Name() }
func (s bufferSource) Dimensions() int        { return s.b.Dimensions() }
func (s bufferSource) Min(dim int) ir.Expr    { return ir.MakeInt(s.b.Min(dim)) }
func (s bufferSource) Extent(dim int) ir.Expr { return ir.MakeInt(s.b.Extent(dim)) }

// FromBuffer creates a reduction domain iterating over all the elements of b, see FromShaped.
func FromBuffer(b buffers.Buffer) RDom {
	return FromShaped(bufferSource{b})
}

// FromDomain wraps an existing domain. If the domain is undefined, X, Y, Z and W are left undefined.
func FromDomain(d ir.ReductionDomain) RDom {
	r := RDom{dom: d}
	if d.Defined() {
		r.initVars("")
	}
	return r
}

// initVars sets X, Y, Z and W.
func (r *RDom) initVars(name string) {
	vars := [4]*RVar{&r.X, &r.Y, &r.Z, &r.W}
	for i, v := range vars {
		if i < r.dom.Len() {
			*v = Bound(r.dom, i)
		} else {
			*v = Free(name + "." + axisNames[i])
		}
	}
}

// Domain returns the underlying reduction domain.
func (r RDom) Domain() ir.ReductionDomain { return r.dom }

// Dimensions returns the number of dimensions of the domain.
func (r RDom) Dimensions() int { return r.dom.Len() }

// At returns dimension i. It is a usage error if i is not a dimension of the domain.
func (r RDom) At(i int) RVar {
	if i < 0 || i >= r.Dimensions() {
		diagnostics.Reportf(diagnostics.IndexOutOfRange, "reduction domain index out of bounds: %d (%d dimensions)",
			i, r.Dimensions())
	}
	switch i {
	case 0:
		return r.X
	case 1:
		return r.Y
	case 2:
		return r.Z
	case 3:
		return r.W
	}
	return Bound(r.dom, i)
}

// checkSingleDimension reports an AmbiguousRank error if the domain isn't 1-dimensional.
func (r RDom) checkSingleDimension(target string) {
	if r.Dimensions() != 1 {
		diagnostics.Raise(diagnostics.New(2, diagnostics.AmbiguousRank,
			"can't treat this multidimensional RDom as an %s:\n%s\nOnly single-dimensional RDoms can be cast to %s.",
			target, r, target))
	}
}

// Expr converts a 1-dimensional domain to the expression of its only variable.
func (r RDom) Expr() ir.Expr {
	r.checkSingleDimension("Expr")
	return r.X.Expr()
}

// RVar converts a 1-dimensional domain to its only variable.
func (r RDom) RVar() RVar {
	r.checkSingleDimension("RVar")
	return r.X
}

// String renders the domain, one dimension per line.
func (r RDom) String() string {
	var sb strings.Builder
	sb.WriteString("RDom(\n")
	for i := range r.Dimensions() {
		sb.WriteString("  ")
		sb.WriteString(r.At(i).String())
		sb.WriteString("\n")
	}
	sb.WriteString(")")
	return sb.String()
}
