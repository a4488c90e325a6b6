package memdump

import (
	"runtime"
)

type options struct {
	workers     int
	logger      *Logger
	source      SourceKind
	filter      func(Region) bool
	registers   bool
	trailer     []byte
	compression Compression
}

func defaultOptions() options {
	return options{
		workers:   runtime.NumCPU(),
		logger:    NoopLogger(),
		source:    SourceProcMem,
		registers: true,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures Dump, Capture and Save.
type Option func(*options)

// WithWorkers caps the number of concurrent capture workers.
// Values below 1 fall back to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		o.workers = n
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithSource selects how Dump reads the target memory.
func WithSource(kind SourceKind) Option {
	return func(o *options) {
		o.source = kind
	}
}

// WithRegionFilter drops regions rejected by keep before the layout is built.
func WithRegionFilter(keep func(Region) bool) Option {
	return func(o *options) {
		o.filter = keep
	}
}

// WithRegisters controls whether Dump appends the register set after the raw snapshot.
func WithRegisters(enabled bool) Option {
	return func(o *options) {
		o.registers = enabled
	}
}

// WithTrailer appends fixed bytes after the raw snapshot, Dump uses it for the register set.
func WithTrailer(trailer []byte) Option {
	return func(o *options) {
		o.trailer = trailer
	}
}

// WithCompression selects the blob encoding used by Save.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}
