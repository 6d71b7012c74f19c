// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/arrayflow/pkg/core/ir"
)

func TestParseInts(t *testing.T) {
	values, err := parseInts("16, 8,1")
	require.NoError(t, err)
	assert.Equal(t, []int{16, 8, 1}, values)

	_, err = parseInts("16,x")
	assert.Error(t, err)
	_, err = parseInts("")
	assert.Error(t, err)
}

func TestParseRanges(t *testing.T) {
	ranges, err := parseRanges("0:4, -2:3")
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, int64(-2), ranges[1].Min.(*ir.IntImm).Value)
	assert.Equal(t, int64(3), ranges[1].Extent.(*ir.IntImm).Value)

	_, err = parseRanges("0-4")
	assert.Error(t, err)
	_, err = parseRanges("0:a")
	assert.Error(t, err)
}
