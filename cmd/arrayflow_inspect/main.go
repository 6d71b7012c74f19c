// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// arrayflow_inspect creates a buffer on a device module, runs a simulated kernel on it, syncs it back to the
// host, and prints the buffer descriptor and a reduction domain over it.
//
// Example:
//
//	arrayflow_inspect -device=sim:max_memory=1MiB -extents=16,8 -rdom=0:4,0:3 -scale=3
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/devices"
	"github.com/gomlx/arrayflow/pkg/core/devices/simdevice"
	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/core/rdom"
	"github.com/gomlx/arrayflow/pkg/support/benchclock"
	"github.com/gomlx/arrayflow/pkg/support/diagnostics"
	"github.com/gomlx/arrayflow/pkg/support/naming"
)

var (
	flagDevice = flag.String("device", "",
		fmt.Sprintf("Device module configuration, formatted as \"<module>:<config>\". "+
			"If empty, $%s is used, and then the first registered module.", devices.ARRAYFLOW_DEVICE))
	flagExtents = flag.String("extents", "16,8", "Comma-separated extents of the buffer, at most 4.")
	flagMins    = flag.String("mins", "", "Comma-separated minimum coordinates of the buffer, defaults to 0.")
	flagRDom    = flag.String("rdom", "", "Comma-separated \"min:extent\" ranges of the reduction domain to print. "+
		"If empty, the domain iterates over the whole buffer.")
	flagScale      = flag.Float64("scale", 2, "Factor the simulated kernel multiplies the buffer by.")
	flagIterations = flag.Int("iterations", 100, "Number of host/device round trips to time.")
	flagUUIDNames  = flag.Bool("uuid_names", false, "Generate UUID based names for unnamed objects.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagUUIDNames {
		naming.SetDefault(naming.NewUUIDNamer())
	}

	err := exceptions.TryCatch[*diagnostics.UserError](run)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() {
	extents := must.M1(parseInts(*flagExtents))
	var mins []int
	if *flagMins != "" {
		mins = must.M1(parseInts(*flagMins))
	}
	var ranges []rdom.Range
	if *flagRDom != "" {
		ranges = must.M1(parseRanges(*flagRDom))
	}

	var module devices.Module
	if *flagDevice != "" {
		module = must.M1(devices.NewWithConfig(*flagDevice))
	} else {
		module = devices.MustNew()
	}
	defer func() { must.M(module.Finalize()) }()

	b := buffers.New(ir.Float(32), extents, nil, "input")
	defer b.Release()
	if len(mins) > 0 {
		b.SetMin(mins...)
	}
	host := buffers.HostSlice[float32](b)
	for i := range host {
		host[i] = float32(i)
	}
	b.SetHostDirty(true)
	must.M(devices.Attach(module, b))
	b.SyncDevice()

	if sim, ok := module.(*simdevice.Module); ok {
		must.M(simdevice.Scale(sim, b, float32(*flagScale)))
		b.SyncHost()
		fmt.Println(titleStyle.Render("Round trips"))
		elapsed := benchclock.Measure(*flagIterations, func() {
			b.SetHostDirty(true)
			b.SyncDevice()
			b.SetDeviceDirty(true)
			b.SyncHost()
		})
		table := newPlainTable(false)
		table.Row("iterations", humanize.Comma(int64(*flagIterations)))
		table.Row("ms/round trip", fmt.Sprintf("%.4f", elapsed))
		table.Row("throughput", benchclock.ItemsPerSecond(b.Size(), elapsed))
		fmt.Println(table.Render())
		printStats(sim.Stats())
	}

	printBuffer(b)

	var r rdom.RDom
	if len(ranges) > 0 {
		r = rdom.New("r", ranges...)
	} else {
		r = rdom.FromBuffer(b)
	}
	printRDom(r)
}
