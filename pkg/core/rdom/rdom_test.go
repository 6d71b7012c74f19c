// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rdom

import (
	"strings"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/core/params"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

func catchUserError(fn func()) *diagnostics.UserError {
	return exceptions.TryCatch[*diagnostics.UserError](fn)
}

func intValue(t *testing.T, e ir.Expr) int64 {
	t.Helper()
	imm, ok := e.(*ir.IntImm)
	require.True(t, ok, "expected an integer constant, got %s", ir.Print(e))
	return imm.Value
}

func TestOneDimension(t *testing.T) {
	r := New("r", R(2, 5))
	require.Equal(t, 1, r.Dimensions())
	assert.Equal(t, "r.x$r", r.X.Name())
	assert.Equal(t, int64(2), intValue(t, r.X.Min()))
	assert.Equal(t, int64(5), intValue(t, r.X.Extent()))
	assert.Equal(t, ir.Int(32), r.X.Min().Type())

	e := r.Expr()
	v, ok := e.(*ir.Variable)
	require.True(t, ok)
	assert.Equal(t, "r.x$r", v.Name)
	assert.Equal(t, ir.Int(32), v.Type())
	assert.True(t, v.IsReduction())
	assert.True(t, v.Domain.SameAs(r.Domain()))

	rv := r.RVar()
	assert.Equal(t, r.X, rv)

	// Placeholders.
	assert.Equal(t, "r.y", r.Y.Name())
	assert.Equal(t, "r.z", r.Z.Name())
	assert.Equal(t, "r.w", r.W.Name())
	assert.Nil(t, r.Y.Min())
	assert.Nil(t, r.W.Extent())
}

func TestRanges(t *testing.T) {
	r := New("q", Ranges(0, 3, ir.MakeInt(1), 4)...)
	require.Equal(t, 2, r.Dimensions())
	assert.Equal(t, int64(1), intValue(t, r.Y.Min()))
	assert.Equal(t, int64(4), intValue(t, r.Y.Extent()))

	err := catchUserError(func() { Ranges(0, 3, 1) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.InvalidArgument, err.Kind)
}

func TestMultiDimensionNames(t *testing.T) {
	ranges := make([]Range, 8)
	for i := range ranges {
		ranges[i] = R(i, 10+i)
	}
	r := New("big", ranges...)
	require.Equal(t, 8, r.Dimensions())
	want := []string{"big.x$r", "big.y$r", "big.z$r", "big.w$r", "big.4$r", "big.5$r", "big.6$r", "big.7$r"}
	for i, name := range want {
		v := r.At(i)
		assert.Equal(t, name, v.Name())
		assert.Equal(t, int64(i), intValue(t, v.Min()))
		assert.Equal(t, int64(10+i), intValue(t, v.Extent()))
		assert.True(t, v.Domain().SameAs(r.Domain()))
		assert.Equal(t, i, v.Index())
	}
	assert.Equal(t, r.X, r.At(0))
	assert.Equal(t, r.W, r.At(3))
}

func TestAmbiguousRank(t *testing.T) {
	r := New("r2", R(0, 3), R(0, 4))
	require.Equal(t, 2, r.Dimensions())
	for name, conversion := range map[string]func(){
		"Expr": func() { r.Expr() },
		"RVar": func() { r.RVar() },
	} {
		err := catchUserError(conversion)
		require.NotNil(t, err, name)
		assert.Equal(t, diagnostics.AmbiguousRank, err.Kind)
		assert.Contains(t, err.Message, "r2.x$r(0, 3)")
		assert.Contains(t, err.Message, "r2.y$r(0, 4)")
		assert.Contains(t, err.Message, "Only single-dimensional RDoms can be cast to "+name)
	}
}

func TestIndexOutOfRange(t *testing.T) {
	for dims := 1; dims <= 6; dims++ {
		ranges := make([]Range, dims)
		for i := range ranges {
			ranges[i] = R(0, 2)
		}
		r := New("", ranges...)
		for i := dims; i < 8; i++ {
			err := catchUserError(func() { r.At(i) })
			require.NotNil(t, err, "dims=%d, index=%d", dims, i)
			assert.Equal(t, diagnostics.IndexOutOfRange, err.Kind)
			assert.Contains(t, err.Message, "out of bounds")
		}
		err := catchUserError(func() { r.At(-1) })
		require.NotNil(t, err)
	}
}

func TestDefaultNames(t *testing.T) {
	r1 := New("", R(0, 1))
	r2 := New("", R(0, 1))
	assert.NotEqual(t, r1.X.Name(), r2.X.Name())
	assert.True(t, strings.HasSuffix(r1.X.Name(), ".x$r"))
	assert.False(t, r1.Domain().SameAs(r2.Domain()))
}

func TestFromBuffer(t *testing.T) {
	b := buffers.New(ir.Float(32), []int{10, 20}, nil, "img")
	defer b.Release()
	b.SetMin(3, -4)
	r := FromBuffer(b)
	require.Equal(t, 2, r.Dimensions())
	assert.Equal(t, "img.x$r", r.X.Name())
	assert.Equal(t, "img.y$r", r.Y.Name())
	assert.Equal(t, int64(3), intValue(t, r.X.Min()))
	assert.Equal(t, int64(10), intValue(t, r.X.Extent()))
	assert.Equal(t, int64(-4), intValue(t, r.Y.Min()))
	assert.Equal(t, int64(20), intValue(t, r.Y.Extent()))
	assert.Equal(t, "img.z", r.Z.Name())
	assert.Equal(t, "img.w", r.W.Name())
	err := catchUserError(func() { r.At(2) })
	require.NotNil(t, err)
}

func TestFromImageParam(t *testing.T) {
	p := params.NewImageParam(ir.UInt(8), 3, "input")
	r := FromShaped(p)
	require.Equal(t, 3, r.Dimensions())
	assert.Equal(t, "input.z$r", r.Z.Name())
	assert.Equal(t, "input.min.2", ir.Print(r.Z.Min()))
	assert.Equal(t, "input.extent.0", ir.Print(r.X.Extent()))
	assert.Equal(t, "input.w", r.W.Name())
}

func TestFromDomain(t *testing.T) {
	original := New("orig", R(1, 2), R(3, 4))
	wrapped := FromDomain(original.Domain())
	assert.True(t, wrapped.Domain().SameAs(original.Domain()))
	assert.Equal(t, 2, wrapped.Dimensions())
	assert.Equal(t, "orig.y$r", wrapped.Y.Name())
	assert.Equal(t, ".z", wrapped.Z.Name())

	// Handles of two RDoms aliasing the same domain produce variables of the same domain.
	e1 := wrapped.X.Expr().(*ir.Variable)
	e2 := original.X.Expr().(*ir.Variable)
	assert.True(t, e1.Domain.SameAs(e2.Domain))
}

func TestUndefinedDomainPropagation(t *testing.T) {
	// Construction doesn't fail.
	r := FromDomain(ir.ReductionDomain{})
	assert.Equal(t, 0, r.Dimensions())
	assert.False(t, r.Domain().Defined())

	// Accessors propagate the undefined state.
	bound := Bound(ir.ReductionDomain{}, 0)
	assert.Equal(t, "", bound.Name())
	assert.Nil(t, bound.Min())
	assert.Nil(t, bound.Extent())
	assert.Nil(t, r.X.Min())

	// Failure only happens when forced into an expression.
	err := catchUserError(func() { bound.Expr() })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.UndefinedRVar, err.Kind)
	assert.Contains(t, err.Message, "<unknown>")

	free := Free("k")
	err = catchUserError(func() { free.Expr() })
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "use of undefined RDom dimension: k")

	err = catchUserError(func() { r.At(0) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.IndexOutOfRange, err.Kind)
}

func TestPlaceholderExprFails(t *testing.T) {
	r := New("p", R(0, 4))
	err := catchUserError(func() { r.Y.Expr() })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.UndefinedRVar, err.Kind)
	assert.Contains(t, err.Message, "p.y")
}

func TestSymbolicBounds(t *testing.T) {
	n := ir.MakeVariable(ir.Int(64), "n", ir.ReductionDomain{})
	r := New("s", R(0, n))
	extent := r.X.Extent()
	require.IsType(t, &ir.Cast{}, extent)
	assert.Equal(t, ir.Int(32), extent.Type())
	assert.True(t, strings.HasPrefix(r.X.String(), "s.x$r(0, "), r.X.String())
	assert.True(t, strings.HasSuffix(r.X.String(), "(n))"), r.X.String())

	err := catchUserError(func() { R(0, 1.5) })
	require.NotNil(t, err)
	assert.Equal(t, diagnostics.InvalidArgument, err.Kind)
	err = catchUserError(func() { New("empty") })
	require.NotNil(t, err)
}

func TestString(t *testing.T) {
	r := New("d", R(0, 3), R(1, 4))
	assert.Equal(t, "RDom(\n  d.x$r(0, 3)\n  d.y$r(1, 4)\n)", r.String())
	assert.Equal(t, "k((undefined), (undefined))", Free("k").String())
}
