// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package buffers

// DeviceCallbacks is the table of device operations of the compiled module that produced a buffer on a
// device. Any of the callbacks may be nil, in which case the corresponding operation is a no-op.
//
// Callbacks must treat a Descriptor with Dev == 0 as having no device allocation: in particular
// FreeDeviceBuffer on such a descriptor is a no-op, which makes freeing idempotent.
type DeviceCallbacks struct {
	// CopyToHost copies the device memory back to the host memory.
	CopyToHost func(desc *Descriptor)

	// CopyToDevice copies the host memory to the device, allocating the device memory if needed.
	CopyToDevice func(desc *Descriptor)

	// FreeDeviceBuffer frees the device allocation and resets desc.Dev to 0.
	FreeDeviceBuffer func(desc *Descriptor)
}

// IsBound returns whether any of the callbacks is set.
func (cb DeviceCallbacks) IsBound() bool {
	return cb.CopyToHost != nil || cb.CopyToDevice != nil || cb.FreeDeviceBuffer != nil
}
