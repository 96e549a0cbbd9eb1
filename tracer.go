package syslatency

import (
	"context"
	"io"
	"time"

	"cdr.dev/slog"
)

// DefaultPerCPUBufferPages is the default size of each per-CPU buffer in
// memory pages.
const DefaultPerCPUBufferPages = 64

// TracerOpts contains all of the configuration options for the tracer. All are
// optional.
type TracerOpts struct {
	// PerCPUBufferSize is the size in bytes of the buffer the kernel writes
	// events into for each CPU. It is rounded up to a whole number of pages.
	// Defaults to DefaultPerCPUBufferPages pages.
	//
	// Small buffers lose events under high syscall rates. Losses are reported
	// to Handler.HandleLost.
	PerCPUBufferSize int

	// PollInterval is passed to the Consumer. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration

	// Logger is used for records that could not be decoded and for lifecycle
	// messages.
	Logger slog.Logger

	// Metrics is updated for every record if set.
	Metrics *Metrics
}

// Tracer attaches a loaded probe to the raw_syscalls tracepoints and streams
// the latency events it emits.
type Tracer interface {
	io.Closer

	// Start attaches the probe and opens the per-CPU buffers. No events are
	// recorded before Start returns successfully.
	Start() error

	// Run consumes events until the tracer is closed, ctx is canceled or
	// reading fails. Closing the tracer makes Run return nil.
	Run(ctx context.Context, h Handler) error
}
