// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gomlx/arrayflow/pkg/core/rdom"
)

// parseInts parses a comma-separated list of integers.
func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid integer %q in %q", part, s)
		}
		values = append(values, v)
	}
	return values, nil
}

// parseRanges parses a comma-separated list of "min:extent" ranges.
func parseRanges(s string) ([]rdom.Range, error) {
	var ranges []rdom.Range
	for _, part := range strings.Split(s, ",") {
		minimum, extent, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			return nil, errors.Errorf("range %q in %q must be formatted as \"min:extent\"", part, s)
		}
		values, err := parseInts(minimum + "," + extent)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rdom.R(values[0], values[1]))
	}
	return ranges, nil
}
