//go:build linux
// +build linux

package syslatency

import (
	"errors"
	"io"
	"log"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

var removeMemlockOnce sync.Once

// BPFObjects contains a loaded probe.
type BPFObjects interface {
	io.Closer

	// ProgramFDs returns the file descriptors of the enter and exit programs,
	// e.g. for profiling them with kernel BPF stats.
	ProgramFDs() (enter, exit int)

	sysEnterProg() *ebpf.Program
	sysExitProg() *ebpf.Program
	eventsMap() *ebpf.Map
}

// LoadBPFObjects reads the probe out of the given ELF file, writes filter into
// its read-only globals and loads it into the kernel. The filter can't be
// changed afterwards.
func LoadBPFObjects(r io.ReaderAt, filter FilterConfig) (BPFObjects, error) {
	// Allow the current process to lock memory for eBPF resources. This does
	// nothing on 5.11+ kernels which don't need this.
	var err error
	removeMemlockOnce.Do(func() {
		err = rlimit.RemoveMemlock()
	})
	if err != nil {
		return nil, xerrors.Errorf("remove kernel memlock: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpecFromReader(r)
	if err != nil {
		return nil, xerrors.Errorf("load collection from reader: %w", err)
	}

	err = filter.Apply(specConstants{spec: spec})
	if err != nil {
		return nil, xerrors.Errorf("configure probe: %w", err)
	}

	objs := &bpfObjects{
		closeLock: sync.Mutex{},
		closed:    make(chan struct{}),
	}
	err = spec.LoadAndAssign(objs, nil)
	if err != nil {
		var verr *ebpf.VerifierError
		if errors.As(err, &verr) {
			// %+v includes the full verifier log.
			return nil, xerrors.Errorf("load and assign specs: %+v", verr)
		}
		return nil, xerrors.Errorf("load and assign specs: %w", err)
	}

	// It could be very bad if someone forgot to close this, so we'll try to
	// detect when it doesn't get closed and log a warning.
	stack := debug.Stack()
	runtime.SetFinalizer(objs, func(o *bpfObjects) {
		err := o.Close()
		if xerrors.Is(err, errObjectsClosed) {
			return
		}

		log.Printf("BPFObjects was finalized but was not closed, created at: %s", stack)
		log.Print("BPFObjects must be closed when finished with to avoid leaked kernel resources")
		if err != nil {
			log.Printf("closing BPFObjects failed: %+v", err)
		}
	})

	return objs, nil
}

// specConstants writes values into the read-only globals of a collection spec
// before it is loaded.
type specConstants struct {
	spec *ebpf.CollectionSpec
}

var _ ConstantWriter = specConstants{}

func (s specConstants) SetConstant(name string, value interface{}) error {
	v, ok := s.spec.Variables[name]
	if !ok {
		return xerrors.Errorf("probe has no global variable %q", name)
	}
	if !v.Constant() {
		return xerrors.Errorf("probe global variable %q is not read-only", name)
	}

	err := v.Set(value)
	if err != nil {
		return xerrors.Errorf("set %q to %v: %w", name, value, err)
	}
	return nil
}

type bpfObjects struct {
	SysEnterProg    *ebpf.Program `ebpf:"tracepoint__raw_syscalls__sys_enter"`
	SysExitProg     *ebpf.Program `ebpf:"tracepoint__raw_syscalls__sys_exit"`
	SysExitEvents   *ebpf.Map     `ebpf:"sys_exit_events"`
	SysEnterEntries *ebpf.Map     `ebpf:"sys_enter_entries"`

	closeLock sync.Mutex
	closed    chan struct{}
}

var _ BPFObjects = &bpfObjects{}

func (o *bpfObjects) ProgramFDs() (enter, exit int) {
	return o.SysEnterProg.FD(), o.SysExitProg.FD()
}

func (o *bpfObjects) sysEnterProg() *ebpf.Program {
	return o.SysEnterProg
}

func (o *bpfObjects) sysExitProg() *ebpf.Program {
	return o.SysExitProg
}

func (o *bpfObjects) eventsMap() *ebpf.Map {
	return o.SysExitEvents
}

func (o *bpfObjects) Close() error {
	o.closeLock.Lock()
	defer o.closeLock.Unlock()
	select {
	case <-o.closed:
		return errObjectsClosed
	default:
	}
	close(o.closed)
	runtime.SetFinalizer(o, nil)

	closers := []struct {
		what string
		c    io.Closer
	}{
		{`BPF program "tracepoint__raw_syscalls__sys_enter"`, o.SysEnterProg},
		{`BPF program "tracepoint__raw_syscalls__sys_exit"`, o.SysExitProg},
		{`BPF map "sys_exit_events"`, o.SysExitEvents},
		{`BPF map "sys_enter_entries"`, o.SysEnterEntries},
	}

	var merr error
	for _, c := range closers {
		if isNilCloser(c.c) {
			continue
		}
		err := c.c.Close()
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close %s: %w", c.what, err))
		}
	}

	return merr
}

// isNilCloser reports whether c wraps a nil program or map.
func isNilCloser(c io.Closer) bool {
	switch v := c.(type) {
	case *ebpf.Program:
		return v == nil
	case *ebpf.Map:
		return v == nil
	default:
		return c == nil
	}
}
