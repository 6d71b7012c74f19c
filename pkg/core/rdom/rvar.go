// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rdom

import (
	"fmt"

	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

// RVar is a handle to one dimension of a reduction domain.
//
// It is either bound to a domain and an index, or free: a name waiting for a domain. A free RVar (and one
// bound to an undefined domain) has undefined min and extent. Using those is only an error when the RVar is
// converted to an expression, see Expr.
type RVar struct {
	name   string
	domain ir.ReductionDomain
	index  int
}

// Bound returns an RVar for dimension index of domain. The index is checked when the variable is used.
func Bound(domain ir.ReductionDomain, index int) RVar {
	return RVar{domain: domain, index: index}
}

// Free returns an RVar with a name but no domain.
func Free(name string) RVar {
	return RVar{name: name}
}

func (v RVar) variable() ir.ReductionVariable {
	return v.domain.At(v.index)
}

// Name of the variable: the name of the domain's dimension if bound, the given name otherwise.
func (v RVar) Name() string {
	if v.domain.Defined() {
		return v.variable().Var
	}
	return v.name
}

// Min returns the minimum of the variable, nil (undefined) if it has no domain.
func (v RVar) Min() ir.Expr {
	if v.domain.Defined() {
		return v.variable().Min
	}
	return nil
}

// Extent returns the extent of the variable, nil (undefined) if it has no domain.
func (v RVar) Extent() ir.Expr {
	if v.domain.Defined() {
		return v.variable().Extent
	}
	return nil
}

// Domain returns the domain the variable belongs to, which may be undefined.
func (v RVar) Domain() ir.ReductionDomain { return v.domain }

// Index returns the dimension of the domain the variable refers to.
func (v RVar) Index() int { return v.index }

// Expr converts the variable to an Int(32) variable expression tied to its domain.
//
// It is a usage error if the variable's min or extent is undefined.
func (v RVar) Expr() ir.Expr {
	if !ir.Defined(v.Min()) || !ir.Defined(v.Extent()) {
		name := v.Name()
		if name == "" {
			name = "<unknown>"
		}
		diagnostics.Reportf(diagnostics.UndefinedRVar, "use of undefined RDom dimension: %s", name)
	}
	return ir.MakeVariable(ir.Int(32), v.Name(), v.domain)
}

// String renders the variable as "name(min, extent)".
func (v RVar) String() string {
	return fmt.Sprintf("%s(%s, %s)", v.Name(), ir.Print(v.Min()), ir.Print(v.Extent()))
}
