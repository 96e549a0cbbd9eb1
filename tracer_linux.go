//go:build linux
// +build linux

package syslatency

import (
	"context"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

type tracer struct {
	objs BPFObjects
	opts TracerOpts

	enterTP link.Link
	exitTP  link.Link
	rd      *perf.Reader

	startOnce sync.Once
	closeLock sync.Mutex
	closed    chan struct{}
}

var _ Tracer = &tracer{}

// NewTracer creates a Tracer using the given BPFObjects. The objects are not
// closed by the tracer.
func NewTracer(objs BPFObjects, opts *TracerOpts) (Tracer, error) {
	if objs == nil {
		return nil, xerrors.New("objs must not be nil")
	}
	if opts == nil {
		opts = &TracerOpts{}
	}

	t := &tracer{
		objs: objs,
		opts: *opts,

		startOnce: sync.Once{},
		closeLock: sync.Mutex{},
		closed:    make(chan struct{}),
	}
	if t.opts.PerCPUBufferSize <= 0 {
		t.opts.PerCPUBufferSize = DefaultPerCPUBufferPages * os.Getpagesize()
	}
	if t.opts.PollInterval <= 0 {
		t.opts.PollInterval = DefaultPollInterval
	}

	// It could be very bad if someone forgot to close this, so we'll try to
	// detect when it doesn't get closed and log a warning.
	stack := debug.Stack()
	runtime.SetFinalizer(t, func(t *tracer) {
		err := t.Close()
		if xerrors.Is(err, errTracerClosed) {
			return
		}

		log.Printf("tracer was finalized but was not closed, created at: %s", stack)
		log.Print("tracers must be closed when finished with to avoid leaked kernel resources")
		if err != nil {
			log.Printf("closing tracer failed: %+v", err)
		}
	})

	return t, nil
}

// Start attaches both programs to their tracepoints and opens the perf
// reader. Run should be called immediately after this succeeds.
func (t *tracer) Start() error {
	if t.isClosed() {
		return errTracerClosed
	}

	var (
		didStart bool
		startErr error
	)
	t.startOnce.Do(func() {
		didStart = true

		// If we don't startup successfully, we need to make sure all of the
		// stuff is cleaned up properly or we'll be leaking kernel resources.
		ok := false
		defer func() {
			if !ok {
				// Best effort.
				_ = t.Close()
			}
		}()

		// Open the reader before attaching so no event is written to a buffer
		// that nobody reads.
		var err error
		t.rd, err = perf.NewReader(t.objs.eventsMap(), t.opts.PerCPUBufferSize)
		if err != nil {
			startErr = xerrors.Errorf("open perf reader: %w", err)
			return
		}

		// sys_enter records the start time of each syscall, sys_exit computes
		// the latency and emits the event.
		t.enterTP, err = link.Tracepoint("raw_syscalls", "sys_enter", t.objs.sysEnterProg(), nil)
		if err != nil {
			startErr = xerrors.Errorf("attach raw_syscalls/sys_enter tracepoint: %w", err)
			return
		}
		t.exitTP, err = link.Tracepoint("raw_syscalls", "sys_exit", t.objs.sysExitProg(), nil)
		if err != nil {
			startErr = xerrors.Errorf("attach raw_syscalls/sys_exit tracepoint: %w", err)
			return
		}

		t.opts.Logger.Debug(context.Background(), "attached syscall tracepoints",
			slog.F("kernel", kernelRelease()),
			slog.F("per_cpu_buffer_bytes", t.opts.PerCPUBufferSize),
		)
		ok = true
	})

	if !didStart {
		return xerrors.New("tracer has already been started")
	}
	return startErr
}

// Run consumes events from the perf reader until the tracer is closed or ctx
// is canceled.
func (t *tracer) Run(ctx context.Context, h Handler) error {
	rd := t.rd
	if rd == nil {
		return xerrors.New("perf reader is not initialized, tracer may not be started or may have been closed")
	}

	c := NewConsumer(perfRecordReader{rd: rd}, h, ConsumerOpts{
		PollInterval: t.opts.PollInterval,
		Logger:       t.opts.Logger,
		Metrics:      t.opts.Metrics,
	})
	return c.Run(ctx)
}

func (t *tracer) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
	}

	return false
}

// Close detaches the tracepoints and closes the perf reader. A blocked Run
// returns nil.
func (t *tracer) Close() error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()
	if t.isClosed() {
		return errTracerClosed
	}
	close(t.closed)
	runtime.SetFinalizer(t, nil)

	// Close everything started in t.Start() in reverse order.
	var merr error
	if t.exitTP != nil {
		err := t.exitTP.Close()
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close raw_syscalls/sys_exit tracepoint: %w", err))
		}
	}
	if t.enterTP != nil {
		err := t.enterTP.Close()
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close raw_syscalls/sys_enter tracepoint: %w", err))
		}
	}
	if t.rd != nil {
		err := t.rd.Close()
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close perf reader: %w", err))
		}
	}

	// It's up to the caller to close t.objs.

	return merr
}

// perfRecordReader adapts a perf.Reader to RecordReader.
type perfRecordReader struct {
	rd *perf.Reader
}

var _ RecordReader = perfRecordReader{}

func (p perfRecordReader) SetDeadline(t time.Time) {
	p.rd.SetDeadline(t)
}

func (p perfRecordReader) Read() (Record, error) {
	record, err := p.rd.Read()
	if err != nil {
		if xerrors.Is(err, perf.ErrClosed) {
			return Record{}, xerrors.Errorf("read perf buffer: %w", ErrReaderClosed)
		}
		return Record{}, xerrors.Errorf("read perf buffer: %w", err)
	}

	return Record{
		CPU:         record.CPU,
		RawSample:   record.RawSample,
		LostSamples: record.LostSamples,
	}, nil
}

func (p perfRecordReader) Close() error {
	return p.rd.Close()
}

// kernelRelease returns the running kernel release, or "unknown".
func kernelRelease() string {
	var uts unix.Utsname
	err := unix.Uname(&uts)
	if err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
}
