package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/kayon/memdump"
	"github.com/kayon/memdump/process"
)

var (
	colorLabel     = color.New(color.FgYellow)
	colorHighlight = color.New(color.FgGreen)
	colorAddress   = color.New(color.FgCyan)
)

// displayChunk prints data as rows of wordSize bytes, each prefixed by its address.
func displayChunk(address uint64, data []byte, wordSize int) {
	var sb strings.Builder
	for i := 0; i < len(data); i += wordSize {
		end := min(i+wordSize, len(data))
		sb.Reset()
		for _, b := range data[i:end] {
			_, _ = fmt.Fprintf(&sb, "0x%02x ", b)
		}
		fmt.Printf("%s: %s\n", colorAddress.Sprintf("%016X", address+uint64(i)), sb.String())
	}
}

func displayRegions(layout *memdump.Layout) {
	regions := layout.Regions()
	var paddingName int
	for _, region := range regions {
		paddingName = max(paddingName, len(region.Name))
	}

	for _, block := range layout.Blocks() {
		colorLabel.Printf("Block %s (%d pages)\n", block, block.Pages())
		for i := block.First; i < block.First+block.Count; i++ {
			region := regions[i]
			fmt.Printf("  %s-%s %s %08X %-*s @%d\n",
				colorAddress.Sprintf("%016X", region.Start),
				colorAddress.Sprintf("%016X", region.End),
				color.YellowString(region.Perms.String()),
				region.Offset,
				paddingName, colorHighlight.Sprint(region.Name),
				layout.RegionOffset(i),
			)
		}
	}
}

func displayStats(snap *memdump.Snapshot) {
	stats := snap.Stats
	fmt.Printf("Dumped %s of %d bytes in-memory in %s (%d workers, %d groups)\n",
		colorHighlight.Sprint(stats.BytesRead), snap.RawSize(), stats.Elapsed, stats.Workers, stats.Groups)
	if missing := snap.RawSize() - stats.BytesRead; missing > 0 {
		color.Yellow("%d bytes could not be read and are zero in the dump", missing)
	}
}

func displayRegisters(snap *memdump.Snapshot) {
	regs := snap.Registers()
	if len(regs) == 0 {
		color.Yellow("No registers in this dump")
		return
	}
	if s := process.FormatRegisters(regs); s != "" {
		fmt.Println(s)
		return
	}
	displayChunk(0, regs, 8)
}
