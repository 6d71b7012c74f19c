// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package devices defines the interface of a device module: the part of a compiled pipeline that owns
// allocations on an accelerator, and moves buffers between host and device.
//
// Modules register themselves with Register, usually in the init function of their package, and are created
// by name with New or NewWithConfig. Buffers produced on a device are bound to the module with Attach.
package devices

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
)

// Module is the API a device module implements.
type Module interface {
	// Name returns the short name of the module. E.g.: "sim" for the simulated device.
	Name() string

	// Callbacks returns the device callbacks to bind to buffers owned by this module.
	Callbacks() buffers.DeviceCallbacks

	// Allocate reserves device memory for the array described by desc and stores its handle in desc.Dev.
	// It is a no-op if desc already has a device allocation from this module, and an error if the
	// allocation is from some other module.
	Allocate(desc *buffers.Descriptor) error

	// Owns returns whether desc.Dev is a live allocation of this module.
	Owns(desc *buffers.Descriptor) bool

	// Finalize releases all the resources of the module. Buffers still bound to it must not be synced after
	// that, but they can still be released.
	Finalize() error
}

// Constructor takes a config string (optionally empty) and returns a Module.
type Constructor func(config string) (Module, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register device module with the given name, and a constructor that takes as input a configuration string.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
	klog.V(2).Infof("devices: registered %q", name)
}

// Registered returns the sorted names of the registered modules.
func Registered() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the default device configuration to use, if set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ARRAYFLOW_DEVICE is the environment variable with the default device configuration to use.
//
// The format is "<module_name>:<module_configuration>", see NewWithConfig.
const ARRAYFLOW_DEVICE = "ARRAYFLOW_DEVICE"

// New returns a new default Module.
//
// The default is:
//
// 1. The environment ARRAYFLOW_DEVICE is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered module is used with an empty configuration.
func New() (Module, error) {
	if config, found := os.LookupEnv(ARRAYFLOW_DEVICE); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// MustNew is like New, but panics on error.
func MustNew() Module {
	m, err := New()
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return m
}

// NewWithConfig creates a module from a configuration string formatted as "<module_name>:<module_configuration>".
//
// The "<module_name>" is the name of a registered module (e.g.: "sim"), and "<module_configuration>" is
// module specific. If there is no ":" the whole string is taken as the module name, and an empty string
// selects the first registered module.
func NewWithConfig(config string) (Module, error) {
	muRegistry.Lock()
	if len(registeredConstructors) == 0 {
		muRegistry.Unlock()
		return nil, errors.New(`no registered device modules -- maybe import the simulated one with ` +
			`import _ "github.com/gomlx/arrayflow/pkg/core/devices/simdevice"?`)
	}
	name, moduleConfig := firstRegistered, ""
	if config != "" {
		name = config
		if idx := strings.Index(config, ":"); idx != -1 {
			name, moduleConfig = config[:idx], config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("can't find device module %q for configuration %q, registered modules: %v",
			name, config, Registered())
	}
	m, err := constructor(moduleConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create device module %q", name)
	}
	klog.V(1).Infof("devices: created module %q (config %q)", m.Name(), moduleConfig)
	return m, nil
}

// Attach binds b to the module m: its device callbacks are set to m's, and device memory is allocated for it.
// The buffer's host data is not copied, use Buffer.CopyToDevice or Buffer.SyncDevice for that.
//
// A buffer that holds device memory of another module can't be attached: free it first with
// Buffer.FreeDeviceBuffer.
func Attach(m Module, b buffers.Buffer) error {
	if !b.Defined() {
		return errors.Errorf("can't attach an undefined buffer to device module %q", m.Name())
	}
	if desc := b.RawBuffer(); desc.Dev != 0 && !m.Owns(desc) {
		return errors.Errorf("can't attach %q to device module %q: it holds device handle %d of another module, "+
			"free it first", b.Name(), m.Name(), desc.Dev)
	}
	if err := m.Allocate(b.RawBuffer()); err != nil {
		return errors.WithMessagef(err, "attaching %q to device module %q", b.Name(), m.Name())
	}
	b.SetSourceModule(m.Callbacks())
	return nil
}

// MustAttach is like Attach, but panics on error.
func MustAttach(m Module, b buffers.Buffer) {
	if err := Attach(m, b); err != nil {
		exceptions.Panicf("%+v", err)
	}
}
