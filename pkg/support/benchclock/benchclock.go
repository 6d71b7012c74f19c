// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package benchclock provides the wall clock and throughput formatting used by developer microbenchmarks.
package benchclock

import (
	"fmt"
	"sync"
	"time"
)

var (
	referenceOnce sync.Once
	reference     time.Time
)

// CurrentTime returns the number of milliseconds elapsed since the first call, which returns 0.
func CurrentTime() float64 {
	first := false
	referenceOnce.Do(func() {
		reference = time.Now()
		first = true
	})
	if first {
		return 0
	}
	return float64(time.Since(reference)) / float64(time.Millisecond)
}

// ItemsPerSecond formats the throughput of n items processed in elapsedMs milliseconds, e.g. "1.23M(items/s)".
func ItemsPerSecond(n int, elapsedMs float64) string {
	ips := float64(n) * 1000 / elapsedMs
	postfix := ""
	switch {
	case ips >= 1e8:
		ips /= 1e9
		postfix = "G"
	case ips >= 1e5:
		ips /= 1e6
		postfix = "M"
	case ips >= 1e2:
		ips /= 1e3
		postfix = "k"
	}
	return fmt.Sprintf("%.3g%s(items/s)", ips, postfix)
}

// Measure runs fn iterations times and returns the elapsed milliseconds per iteration.
func Measure(iterations int, fn func()) float64 {
	start := CurrentTime()
	for range iterations {
		fn()
	}
	return (CurrentTime() - start) / float64(iterations)
}
