// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/gomlx/arrayflow/pkg/core/buffers"
	"github.com/gomlx/arrayflow/pkg/core/devices/simdevice"
	"github.com/gomlx/arrayflow/pkg/core/ir"
	"github.com/gomlx/arrayflow/pkg/core/rdom"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row < 0 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func printBuffer(b buffers.Buffer) {
	desc := b.RawBuffer()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Buffer %q", b.Name())))
	table := newPlainTable(false)
	table.Row("type", b.Type().String())
	table.Row("dimensions", strconv.Itoa(b.Dimensions()))
	table.Row("elements", humanize.Comma(int64(b.Size())))
	table.Row("memory", humanize.IBytes(uint64(b.Memory())))
	table.Row("owns host memory", strconv.FormatBool(b.OwnsHostMemory()))
	table.Row("host", fmt.Sprintf("%p", desc.Host))
	table.Row("device handle", strconv.FormatUint(desc.Dev, 10))
	table.Row("host dirty", strconv.FormatBool(desc.HostDirty))
	table.Row("device dirty", strconv.FormatBool(desc.DevDirty))
	table.Row("references", strconv.Itoa(b.References()))
	fmt.Println(table.Render())

	dims := newPlainTable(true)
	dims.Headers("dim", "min", "extent", "stride")
	for dim := range b.Dimensions() {
		dims.Row(strconv.Itoa(dim), strconv.Itoa(b.Min(dim)), strconv.Itoa(b.Extent(dim)), strconv.Itoa(b.Stride(dim)))
	}
	fmt.Println(dims.Render())

	host := buffers.HostSlice[float32](b)
	n := min(len(host), 8)
	fmt.Printf("    first %d host values: %v\n", n, host[:n])
}

func printStats(stats simdevice.Stats) {
	fmt.Println(titleStyle.Render("Simulated device"))
	table := newPlainTable(false)
	table.Row("allocations", humanize.Comma(stats.Allocations))
	table.Row("frees", humanize.Comma(stats.Frees))
	table.Row("host to device", fmt.Sprintf("%s (%s)", humanize.Comma(stats.HostToDevice),
		humanize.IBytes(uint64(stats.BytesToDevice))))
	table.Row("device to host", fmt.Sprintf("%s (%s)", humanize.Comma(stats.DeviceToHost),
		humanize.IBytes(uint64(stats.BytesToHost))))
	table.Row("kernel launches", humanize.Comma(stats.KernelLaunches))
	table.Row("live memory", humanize.IBytes(uint64(stats.LiveDeviceMemory)))
	fmt.Println(table.Render())
}

func printRDom(r rdom.RDom) {
	fmt.Println(titleStyle.Render("Reduction domain"))
	table := newPlainTable(true)
	table.Headers("index", "variable", "min", "extent")
	for i := range r.Dimensions() {
		v := r.At(i)
		table.Row(strconv.Itoa(i), v.Name(), ir.Print(v.Min()), ir.Print(v.Extent()))
	}
	fmt.Println(table.Render())
}
