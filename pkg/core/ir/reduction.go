// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"slices"
	"strings"

	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
)

// ReductionVariable is one dimension of a ReductionDomain: a name and the symbolic range [Min, Min+Extent).
type ReductionVariable struct {
	Var         string
	Min, Extent Expr
}

// reductionDomainContents is shared by all handles to the same domain.
type reductionDomainContents struct {
	domain []ReductionVariable
}

// ReductionDomain is a handle to an ordered, immutable list of ReductionVariable.
//
// Handles are compared by identity (SameAs), not by contents: two domains built from identical variables are
// still different domains. The zero value is the undefined domain, a valid value meaning "no domain yet".
type ReductionDomain struct {
	contents *reductionDomainContents
}

// NewReductionDomain creates a new domain with a copy of vars.
// Variable names must be unique within the domain.
func NewReductionDomain(vars []ReductionVariable) ReductionDomain {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v.Var] {
			diagnostics.Reportf(diagnostics.InvalidArgument, "duplicate reduction variable %q", v.Var)
		}
		seen[v.Var] = true
	}
	return ReductionDomain{contents: &reductionDomainContents{domain: slices.Clone(vars)}}
}

// Defined returns whether d refers to an actual domain.
func (d ReductionDomain) Defined() bool { return d.contents != nil }

// SameAs returns whether d and other are the same domain. Two undefined domains are the same.
func (d ReductionDomain) SameAs(other ReductionDomain) bool { return d.contents == other.contents }

// Len returns the number of dimensions of the domain, 0 for the undefined domain.
func (d ReductionDomain) Len() int {
	if d.contents == nil {
		return 0
	}
	return len(d.contents.domain)
}

// Domain returns a copy of the variables of the domain, nil for the undefined domain.
func (d ReductionDomain) Domain() []ReductionVariable {
	if d.contents == nil {
		return nil
	}
	return slices.Clone(d.contents.domain)
}

// At returns the variable of dimension i.
// Indexing out of range (including any index of the undefined domain) is a usage error.
func (d ReductionDomain) At(i int) ReductionVariable {
	if i < 0 || i >= d.Len() {
		diagnostics.Reportf(diagnostics.IndexOutOfRange,
			"reduction domain index out of bounds: %d (domain has %d dimensions)", i, d.Len())
	}
	return d.contents.domain[i]
}

// String renders the domain as the list of its variables.
func (d ReductionDomain) String() string {
	if d.contents == nil {
		return "ReductionDomain(undefined)"
	}
	var sb strings.Builder
	sb.WriteString("ReductionDomain(")
	for i, v := range d.contents.domain {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.Var)
		sb.WriteString("(")
		sb.WriteString(Print(v.Min))
		sb.WriteString(", ")
		sb.WriteString(Print(v.Extent))
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

// Argument describes a pipeline input or output.
type Argument struct {
	Name     string
	IsBuffer bool
	Type     Type
}
