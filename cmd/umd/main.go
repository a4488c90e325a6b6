package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/kayon/memdump"
	"github.com/kayon/memdump/process"
)

var (
	attachPID    int
	inspect      bool
	dumpDir      string
	dataPath     string
	metaPath     string
	workers      int
	sourceName   string
	compressName string
	readableOnly bool
	noRegisters  bool
	niceness     int
	noPrompt     bool
	verbose      bool
)

func init() {
	pflag.IntVarP(&attachPID, "attach", "a", 0, "attach to PID and dump its memory")
	pflag.BoolVarP(&inspect, "inspect", "i", false, "inspect a dump saved earlier (needs --data and --meta)")
	pflag.StringVarP(&dumpDir, "dir", "d", ".", "directory that receives <pid>_dump/")
	pflag.StringVar(&dataPath, "data", "", "raw dump file to inspect")
	pflag.StringVar(&metaPath, "meta", "", "JSON metadata file to inspect")
	pflag.IntVarP(&workers, "workers", "j", 0, "capture workers (default: number of CPUs)")
	pflag.StringVar(&sourceName, "source", memdump.SourceProcMem.String(), "memory source: mem or vmreadv")
	pflag.StringVar(&compressName, "compress", memdump.NoCompression.String(), "dump compression: none or zstd")
	pflag.BoolVar(&readableOnly, "readable-only", false, "skip regions without read permission")
	pflag.BoolVar(&noRegisters, "no-registers", false, "do not append the register set to the dump")
	pflag.IntVar(&niceness, "nice", -20, "nice value while dumping, 0 leaves the priority alone")
	pflag.BoolVar(&noPrompt, "no-prompt", false, "exit after dumping instead of opening the inspection prompt")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	pflag.Parse()
}

func main() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := memdump.NewTextLogger(os.Stderr, level)

	switch {
	case attachPID > 0:
		snap := runAttach(logger)
		defer snap.Close()
		if !noPrompt {
			runConsole(snap)
		}
	case inspect:
		if dataPath == "" || metaPath == "" {
			usage()
		}
		snap, err := memdump.Load(dataPath, metaPath)
		checkError(err)
		defer snap.Close()
		colorLabel.Printf("Loaded %s\n", snap)
		runConsole(snap)
	default:
		usage()
	}
}

func runAttach(logger *memdump.Logger) *memdump.Snapshot {
	if os.Geteuid() != 0 {
		color.Yellow("WARNING: attach mode usually needs root privileges")
	}
	if !process.Exists(attachPID) {
		checkError(fmt.Errorf("%w: pid %d", process.ErrNotFound, attachPID))
	}

	source, err := memdump.ParseSourceKind(sourceName)
	checkError(err)
	compression, err := memdump.ParseCompression(compressName)
	checkError(err)

	opts := []memdump.Option{
		memdump.WithLogger(logger),
		memdump.WithWorkers(workers),
		memdump.WithSource(source),
		memdump.WithRegisters(!noRegisters),
		memdump.WithCompression(compression),
	}
	if readableOnly {
		opts = append(opts, memdump.WithRegionFilter(memdump.Readable))
	}

	var snap *memdump.Snapshot
	err = withNice(niceness, logger, func() (err error) {
		snap, err = memdump.Dump(attachPID, opts...)
		return
	})
	checkError(err)

	displayStats(snap)

	data, meta, err := memdump.Save(snap, memdump.DefaultBase(dumpDir, attachPID), opts...)
	checkError(err)
	fmt.Printf("Dump %s\nMetadata %s\n", colorHighlight.Sprint(data), colorHighlight.Sprint(meta))
	return snap
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s -a PID [-d DIR] | -i --data DUMP --meta JSON\n", os.Args[0])
	pflag.PrintDefaults()
	os.Exit(1)
}

func checkError(err error) {
	if err != nil {
		color.Red("ERROR: %v", err)
		os.Exit(1)
	}
}
