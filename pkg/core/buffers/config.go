// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ARRAYFLOW_BUFFERS is the environment variable with the default buffers configuration.
//
// The format is a comma-separated list of options "key[=value]", see ParseConfig.
const ARRAYFLOW_BUFFERS = "ARRAYFLOW_BUFFERS"

// DefaultAlignment is the alignment, in bytes, of the host memory of self-allocated buffers.
const DefaultAlignment = 32

// LeakCheck controls what happens when the garbage collector reclaims a Buffer that was never released.
type LeakCheck int

const (
	// LeakCheckWarn logs a warning, and then tears the buffer down.
	LeakCheckWarn LeakCheck = iota

	// LeakCheckOff silently tears the buffer down.
	LeakCheckOff
)

// Config holds the options used when creating buffers.
type Config struct {
	// Alignment of self-allocated host memory, in bytes. Must be a power of 2.
	Alignment int

	// LegacyDeviceDirty makes Buffer.SetDeviceDirty set the host-dirty flag instead of the device-dirty flag.
	// Some pipelines were written against this behavior.
	LegacyDeviceDirty bool

	// LeakCheck controls reporting of buffers reclaimed without Release.
	LeakCheck LeakCheck

	// Allocator used for self-allocated host memory. If nil, HeapAllocator is used.
	Allocator Allocator
}

// DefaultConfig is used by New and NewFromDescriptor.
//
// It is initialized from the environment variable ARRAYFLOW_BUFFERS, if set.
var DefaultConfig = Config{
	Alignment: DefaultAlignment,
	Allocator: HeapAllocator{},
}

func init() {
	config, found := os.LookupEnv(ARRAYFLOW_BUFFERS)
	if !found {
		return
	}
	parsed, err := ParseConfig(config)
	if err != nil {
		klog.Errorf("invalid $%s=%q, using default buffers configuration: %+v", ARRAYFLOW_BUFFERS, config, err)
		return
	}
	DefaultConfig = parsed
}

// ParseConfig parses a configuration string, starting from the default values.
//
// Options:
//
//   - "alignment=<n>": alignment of self-allocated host memory, a power of 2.
//   - "legacy_device_dirty": see Config.LegacyDeviceDirty.
//   - "leak_check=off|warn": see Config.LeakCheck.
func ParseConfig(config string) (Config, error) {
	cfg := Config{
		Alignment: DefaultAlignment,
		Allocator: HeapAllocator{},
	}
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "alignment":
			alignment, err := strconv.Atoi(value)
			if err != nil {
				return cfg, errors.Wrapf(err, "parsing alignment in option %q", option)
			}
			if alignment <= 0 || alignment&(alignment-1) != 0 {
				return cfg, errors.Errorf("alignment must be a positive power of 2, got %d", alignment)
			}
			cfg.Alignment = alignment
		case "legacy_device_dirty":
			cfg.LegacyDeviceDirty = value == "" || value == "true" || value == "1"
		case "leak_check":
			switch value {
			case "warn", "":
				cfg.LeakCheck = LeakCheckWarn
			case "off":
				cfg.LeakCheck = LeakCheckOff
			default:
				return cfg, errors.Errorf("unknown leak_check value %q, valid values are \"warn\" or \"off\"", value)
			}
		default:
			return cfg, errors.Errorf("unknown buffers option %q", option)
		}
	}
	return cfg, nil
}
