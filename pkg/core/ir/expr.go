// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strconv"

	"github.com/gomlx/gopjrt/dtypes"
	"golang.org/x/exp/constraints"
)

// Expr is a node of a symbolic expression tree.
//
// A nil Expr is the "undefined" expression: it is a valid value that flows through accessors (e.g. the min of
// an RVar without a domain) and only fails when forced into a concrete expression. Use Defined to test for it.
type Expr interface {
	// Type of the value the expression evaluates to.
	Type() Type

	// String renders the expression for diagnostics.
	String() string
}

// Defined returns whether e is a defined expression.
func Defined(e Expr) bool { return e != nil }

// Print renders e, including the undefined expression.
func Print(e Expr) string {
	if e == nil {
		return "(undefined)"
	}
	return e.String()
}

// IntImm is an integer constant.
type IntImm struct {
	Value int64
	T     Type
}

// MakeInt returns an Int(32) constant.
func MakeInt[T constraints.Integer](v T) Expr {
	return &IntImm{Value: int64(v), T: Int(32)}
}

// Type implements Expr.
func (i *IntImm) Type() Type { return i.T }

// String implements Expr.
func (i *IntImm) String() string { return strconv.FormatInt(i.Value, 10) }

// Cast converts Value to type T.
type Cast struct {
	Value Expr
	T     Type
}

// Type implements Expr.
func (c *Cast) Type() Type { return c.T }

// String implements Expr.
func (c *Cast) String() string { return fmt.Sprintf("%s(%s)", c.T, Print(c.Value)) }

// CastTo returns e converted to t. It's a no-op if e is already of type t, and undefined stays undefined.
// Integer constants are folded.
func CastTo(t Type, e Expr) Expr {
	if e == nil || e.Type() == t {
		return e
	}
	if imm, ok := e.(*IntImm); ok && t.IsScalar() && isInteger(t.DType) {
		return &IntImm{Value: imm.Value, T: t}
	}
	return &Cast{Value: e, T: t}
}

// Variable is a reference to a named value. If Domain is defined, the variable is a reduction variable of
// that domain; otherwise it's a free (pure) variable.
type Variable struct {
	Name   string
	T      Type
	Domain ReductionDomain
}

// MakeVariable is the factory for variable nodes: reduction variables are tied to their owning domain, so
// later stages can tell them apart from pure variables.
func MakeVariable(t Type, name string, domain ReductionDomain) *Variable {
	return &Variable{Name: name, T: t, Domain: domain}
}

// Type implements Expr.
func (v *Variable) Type() Type { return v.T }

// String implements Expr.
func (v *Variable) String() string { return v.Name }

// IsReduction returns whether v is bound to a reduction domain.
func (v *Variable) IsReduction() bool { return v.Domain.Defined() }

func isInteger(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		return true
	}
	return false
}
