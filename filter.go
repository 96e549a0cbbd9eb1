package syslatency

import (
	"os"

	"golang.org/x/xerrors"
)

// NoSyscallFilter is the TargetSyscall value that disables syscall filtering.
const NoSyscallFilter int32 = -1

// Names of the read-only global variables in the probe. These must be kept in
// sync with the probe source.
const (
	constPIDSelf            = "pid_self"
	constOnlyTraceContainer = "only_trace_container"
	constTraceSyscall       = "trace_syscall"
)

// FilterOptions contains the user supplied filters. All are optional.
type FilterOptions struct {
	// ContainerOnly drops events from processes in the host PID namespace.
	//
	// This filter runs in the kernel for high performance.
	ContainerOnly bool
	// Syscall limits tracing to a single syscall name. If the name maps to
	// multiple numbers (e.g. x32 variants), the first native number is used.
	Syscall string
}

// FilterConfig is the parameter block handed to the probe before it is
// loaded. The probe reads it on every syscall exit; once the probe is loaded
// it lives in a read-only map and can't be changed.
type FilterConfig struct {
	// SelfPID is excluded from tracing so the tracer doesn't trace its own
	// writes to stdout.
	SelfPID       uint32
	ContainerOnly bool
	// TargetSyscall is the only syscall number to trace, or NoSyscallFilter.
	TargetSyscall int32
}

// ConstantWriter accepts values for the probe's read-only globals. It is
// implemented on top of the probe's collection spec on Linux.
type ConstantWriter interface {
	SetConstant(name string, value interface{}) error
}

// NewFilterConfig resolves opts against the catalog. Unknown syscall names
// fail with ErrUnknownSyscallName.
func NewFilterConfig(cat *Catalog, opts FilterOptions) (FilterConfig, error) {
	cfg := FilterConfig{
		SelfPID:       uint32(os.Getpid()),
		ContainerOnly: opts.ContainerOnly,
		TargetSyscall: NoSyscallFilter,
	}
	if opts.Syscall == "" {
		return cfg, nil
	}

	nrs, err := cat.Numbers(opts.Syscall)
	if err != nil {
		return FilterConfig{}, xerrors.Errorf("resolve syscall filter: %w", err)
	}
	cfg.TargetSyscall = int32(nrs[0])

	return cfg, nil
}

// Filtered returns true if the probe only emits a single syscall.
func (c FilterConfig) Filtered() bool {
	return c.TargetSyscall != NoSyscallFilter
}

// Apply writes the filter into the probe's read-only globals. It must be
// called exactly once, before the probe is loaded.
func (c FilterConfig) Apply(w ConstantWriter) error {
	var onlyContainer uint8
	if c.ContainerOnly {
		onlyContainer = 1
	}

	consts := []struct {
		name  string
		value interface{}
	}{
		{constPIDSelf, c.SelfPID},
		{constOnlyTraceContainer, onlyContainer},
		{constTraceSyscall, c.TargetSyscall},
	}
	for _, v := range consts {
		err := w.SetConstant(v.name, v.value)
		if err != nil {
			return xerrors.Errorf("set probe constant %q: %w", v.name, err)
		}
	}

	return nil
}
