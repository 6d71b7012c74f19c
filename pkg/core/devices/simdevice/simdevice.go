// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simdevice implements a simulated accelerator device module, keeping the "device" memory in Go memory.
//
// It behaves like the device runtime of a compiled pipeline: copies between host and device clear the dirty
// flag of the side that was copied from, kernels (see Fill and Scale) mark the device as dirty, and freeing
// resets the device handle. It is used for testing and by the arrayflow_inspect tool.
//
// Configuration options (comma-separated, after "sim:" in ARRAYFLOW_DEVICE):
//
//   - max_memory=<size>: total device memory, e.g. "64MiB". Default is unlimited.
//   - parallelism=<n>: number of goroutines running a kernel. Default is runtime.NumCPU(), 0 runs kernels
//     inline.
package simdevice

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/internal/workerspool"
	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/devices"
)

// ModuleName to be used in ARRAYFLOW_DEVICE to select this module.
const ModuleName = "sim"

func init() {
	devices.Register(ModuleName, func(config string) (devices.Module, error) {
		return New(config)
	})
}

// Stats counts the operations executed by a Module.
type Stats struct {
	Allocations, Frees                int64
	HostToDevice, DeviceToHost        int64
	BytesToDevice, BytesToHost        int64
	KernelLaunches                    int64
	LiveAllocations, LiveDeviceMemory int64
}

// Module is the simulated device. It is safe for concurrent use.
type Module struct {
	maxMemory int64
	pool      *workerspool.Pool

	mu        sync.Mutex
	memory    map[uint64][]byte
	used      int64
	finalized bool

	stats struct {
		allocations, frees         atomic.Int64
		hostToDevice, deviceToHost atomic.Int64
		bytesToDevice, bytesToHost atomic.Int64
		kernelLaunches             atomic.Int64
	}
}

// Compile-time check that Module implements devices.Module.
var _ devices.Module = (*Module)(nil)

// nextHandle is shared by all modules, so a handle never names memory on two different modules.
var nextHandle atomic.Uint64

// New creates a simulated device with the given configuration, see package documentation.
func New(config string) (*Module, error) {
	m := &Module{memory: make(map[uint64][]byte), pool: workerspool.New()}
	for _, opt := range strings.Split(config, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "max_memory":
			size, err := humanize.ParseBytes(value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid max_memory %q for simulated device", value)
			}
			m.maxMemory = int64(size)
		case "parallelism":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, errors.Errorf("invalid parallelism %q for simulated device", value)
			}
			m.pool.SetMaxParallelism(n)
		default:
			return nil, errors.Errorf("unknown simulated device option %q in config %q", key, config)
		}
	}
	return m, nil
}

// Name implements devices.Module.
func (m *Module) Name() string { return ModuleName }

// Callbacks implements devices.Module.
func (m *Module) Callbacks() buffers.DeviceCallbacks {
	return buffers.DeviceCallbacks{
		CopyToHost:       m.copyToHost,
		CopyToDevice:     m.copyToDevice,
		FreeDeviceBuffer: m.free,
	}
}

// deviceBytes allocates n bytes of device memory, aligned to 8 bytes so kernels can view them as any
// supported dtype.
func deviceBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

// Allocate implements devices.Module.
// It returns an error if desc already holds a device handle that was not allocated by m.
func (m *Module) Allocate(desc *buffers.Descriptor) error {
	size := desc.SpanBytes()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return errors.New("simulated device already finalized")
	}
	if desc.Dev != 0 {
		if _, found := m.memory[desc.Dev]; !found {
			return errors.Errorf("device handle %d was not allocated by this simulated device", desc.Dev)
		}
		return nil
	}
	if m.maxMemory > 0 && m.used+int64(size) > m.maxMemory {
		return errors.Errorf("simulated device out of memory: allocating %s with %s of %s in use",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(m.used)), humanize.IBytes(uint64(m.maxMemory)))
	}
	handle := nextHandle.Add(1)
	m.memory[handle] = deviceBytes(size)
	m.used += int64(size)
	desc.Dev = handle
	m.stats.allocations.Add(1)
	klog.V(2).Infof("simdevice: allocated %s as handle %d", humanize.IBytes(uint64(size)), handle)
	return nil
}

// Owns implements devices.Module.
func (m *Module) Owns(desc *buffers.Descriptor) bool {
	if desc.Dev == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.memory[desc.Dev]
	return found
}

// lookup returns the device memory of handle.
func (m *Module) lookup(handle uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return nil, errors.New("simulated device already finalized")
	}
	mem, found := m.memory[handle]
	if !found {
		return nil, errors.Errorf("invalid simulated device handle %d", handle)
	}
	return mem, nil
}

// CopyToDevice copies the host memory of desc to the device, allocating the device memory if needed, and
// clears the host-dirty flag.
func (m *Module) CopyToDevice(desc *buffers.Descriptor) error {
	if desc.Host == nil {
		return errors.New("can't copy to device a buffer without host memory")
	}
	if err := m.Allocate(desc); err != nil {
		return err
	}
	mem, err := m.lookup(desc.Dev)
	if err != nil {
		return err
	}
	n := copy(mem, desc.HostBytes())
	desc.HostDirty = false
	m.stats.hostToDevice.Add(1)
	m.stats.bytesToDevice.Add(int64(n))
	return nil
}

// CopyToHost copies the device memory of desc to the host, and clears the device-dirty flag.
// It is a no-op if desc has no device allocation.
func (m *Module) CopyToHost(desc *buffers.Descriptor) error {
	if desc.Dev == 0 {
		return nil
	}
	if desc.Host == nil {
		return errors.Errorf("can't copy device handle %d to a buffer without host memory", desc.Dev)
	}
	mem, err := m.lookup(desc.Dev)
	if err != nil {
		return err
	}
	n := copy(desc.HostBytes(), mem)
	desc.DevDirty = false
	m.stats.deviceToHost.Add(1)
	m.stats.bytesToHost.Add(int64(n))
	return nil
}

// Free releases the device memory of desc and resets desc.Dev to 0.
// It is a no-op if desc has no device allocation.
func (m *Module) Free(desc *buffers.Descriptor) error {
	if desc.Dev == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := desc.Dev
	desc.Dev = 0
	if m.finalized {
		// Finalize already released everything.
		return nil
	}
	mem, found := m.memory[handle]
	if !found {
		return errors.Errorf("freeing invalid simulated device handle %d", handle)
	}
	delete(m.memory, handle)
	m.used -= int64(len(mem))
	m.stats.frees.Add(1)
	klog.V(2).Infof("simdevice: freed handle %d", handle)
	return nil
}

// The callbacks have no way to return errors: failed copies panic with the error, and failed frees, which can
// happen during garbage collection, are only logged.

func (m *Module) copyToDevice(desc *buffers.Descriptor) {
	if err := m.CopyToDevice(desc); err != nil {
		exceptions.Panicf("%+v", err)
	}
}

func (m *Module) copyToHost(desc *buffers.Descriptor) {
	if err := m.CopyToHost(desc); err != nil {
		exceptions.Panicf("%+v", err)
	}
}

func (m *Module) free(desc *buffers.Descriptor) {
	if err := m.Free(desc); err != nil {
		klog.Errorf("simdevice: %v", err)
	}
}

// Finalize implements devices.Module. It releases all device memory.
func (m *Module) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return nil
	}
	if len(m.memory) > 0 {
		klog.V(1).Infof("simdevice: finalizing with %d live allocations (%s)",
			len(m.memory), humanize.IBytes(uint64(m.used)))
	}
	m.finalized = true
	m.memory = nil
	m.used = 0
	return nil
}

// Stats returns a snapshot of the module's counters.
func (m *Module) Stats() Stats {
	m.mu.Lock()
	live, used := int64(len(m.memory)), m.used
	m.mu.Unlock()
	return Stats{
		Allocations:      m.stats.allocations.Load(),
		Frees:            m.stats.frees.Load(),
		HostToDevice:     m.stats.hostToDevice.Load(),
		DeviceToHost:     m.stats.deviceToHost.Load(),
		BytesToDevice:    m.stats.bytesToDevice.Load(),
		BytesToHost:      m.stats.bytesToHost.Load(),
		KernelLaunches:   m.stats.kernelLaunches.Load(),
		LiveAllocations:  live,
		LiveDeviceMemory: used,
	}
}
