package syslatency

import (
	"io"
	"time"

	"golang.org/x/xerrors"
)

// ErrReaderClosed is returned by a RecordReader once it has been closed.
var ErrReaderClosed = xerrors.New("record reader is closed")

// Handler receives everything the Consumer reads from the probe.
type Handler interface {
	// HandleEvent is called for every successfully decoded event.
	HandleEvent(ev *Event)
	// HandleLost is called when the probe reports that count records from the
	// given CPU were dropped because the buffer was full. Loss is expected
	// under high syscall rates and is never fatal.
	HandleLost(cpu int, count uint64)
}

// Record is a single read from the probe's per-CPU buffers. It either
// carries a raw event or a lost sample count, never both.
type Record struct {
	// CPU is the index of the per-CPU buffer the record came from.
	CPU         int
	RawSample   []byte
	LostSamples uint64
}

// RecordReader reads records from the probe. On Linux this wraps a perf
// event array reader.
type RecordReader interface {
	io.Closer

	// SetDeadline makes Read return an error wrapping
	// os.ErrDeadlineExceeded if no record is available before t.
	SetDeadline(t time.Time)
	// Read blocks until a record is available, the deadline passes or the
	// reader is closed. Reads after Close return an error wrapping
	// ErrReaderClosed.
	Read() (Record, error)
}
