// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package naming generates process-wide unique names for buffers, reduction domains and other entities
// that need a default name.
//
// Names are made of a category tag (e.g. "b" for buffers, "r" for reduction domains) followed by a
// per-category counter. The default Namer can be replaced, e.g. by a UUIDNamer when names must not collide
// across processes.
package naming

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Namer generates unique names for a category.
type Namer interface {
	Unique(category string) string
}

// CounterNamer keeps one counter per category. The zero value is ready to use.
type CounterNamer struct {
	mu       sync.Mutex
	counters map[string]int
}

// Unique returns category followed by the next value of the category's counter, starting at 0.
func (n *CounterNamer) Unique(category string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.counters == nil {
		n.counters = make(map[string]int)
	}
	id := n.counters[category]
	n.counters[category] = id + 1
	return category + strconv.Itoa(id)
}

// UUIDNamer generates names with a random UUID suffix.
type UUIDNamer struct{}

// NewUUIDNamer returns a Namer whose names are unique across processes.
func NewUUIDNamer() UUIDNamer { return UUIDNamer{} }

// Unique implements Namer.
func (UUIDNamer) Unique(category string) string {
	return category + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

var (
	muDefault    sync.Mutex
	defaultNamer Namer = &CounterNamer{}
)

// SetDefault replaces the process-wide Namer and returns the previous one.
func SetDefault(namer Namer) (previous Namer) {
	muDefault.Lock()
	defer muDefault.Unlock()
	previous = defaultNamer
	defaultNamer = namer
	return
}

// Unique returns a unique name for category using the process-wide Namer.
func Unique(category string) string {
	muDefault.Lock()
	namer := defaultNamer
	muDefault.Unlock()
	name := namer.Unique(category)
	klog.V(2).Infof("naming: generated %q", name)
	return name
}
