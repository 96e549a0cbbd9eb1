package syslatency

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/xerrors"
)

// CommLen is the size of the command name buffer in a raw event. This must
// be kept in sync with TASK_COMM_LEN in the probe.
const CommLen = 32

// Byte offsets of each field in a raw event. The record is defined purely by
// these offsets and widths so that decoding never depends on Go struct
// layout. They mirror `struct sys_exit_event_t` in the probe, including the 4
// bytes of padding after the syscall number.
const (
	offPID       = 0
	offUID       = 4
	offCgroupID  = 8
	offSyscallNr = 16
	offLatency   = 24
	offComm      = 32

	// EventSize is the size in bytes of a single raw event record.
	EventSize = offComm + CommLen
)

var (
	// ErrShortBuffer is returned when a raw record is smaller than EventSize.
	ErrShortBuffer = xerrors.New("buffer is shorter than an event record")
	// ErrMalformedEncoding is returned when the command name of a raw record
	// is not valid UTF-8.
	ErrMalformedEncoding = xerrors.New("command name is not valid UTF-8")
)

// Event is a single syscall exit observed by the probe.
type Event struct {
	PID uint32 `json:"pid"`
	UID uint32 `json:"uid"`
	// CgroupID is the ID of the cgroup v2 the task was in when the syscall
	// started. It is equal to the inode number of the cgroup directory.
	CgroupID  uint64 `json:"cgroup_id"`
	SyscallNr uint32 `json:"syscall_nr"`
	// Latency is the time between syscall entry and exit in nanoseconds.
	Latency uint64 `json:"latency_ns"`
	// Comm is the command name of the task, without trailing NUL bytes.
	Comm string `json:"comm"`
}

// DecodeEvent decodes a raw record sent by the probe. Bytes past EventSize
// are ignored, perf samples are padded to 8 bytes. Either a complete Event or
// an error is returned, never both.
func DecodeEvent(buf []byte) (*Event, error) {
	if len(buf) < EventSize {
		return nil, xerrors.Errorf("decode event of %d bytes (want %d): %w", len(buf), EventSize, ErrShortBuffer)
	}

	comm := buf[offComm : offComm+CommLen]
	if i := bytes.IndexByte(comm, 0); i >= 0 {
		comm = comm[:i]
	}
	if !utf8.Valid(comm) {
		return nil, xerrors.Errorf("decode event comm %q: %w", comm, ErrMalformedEncoding)
	}

	return &Event{
		PID:       NativeEndian.Uint32(buf[offPID:]),
		UID:       NativeEndian.Uint32(buf[offUID:]),
		CgroupID:  NativeEndian.Uint64(buf[offCgroupID:]),
		SyscallNr: NativeEndian.Uint32(buf[offSyscallNr:]),
		Latency:   NativeEndian.Uint64(buf[offLatency:]),
		Comm:      string(comm),
	}, nil
}

// MarshalBinary encodes the event in the same layout the probe uses. The
// command name is padded with NUL bytes.
func (e *Event) MarshalBinary() ([]byte, error) {
	if len(e.Comm) > CommLen {
		return nil, xerrors.Errorf("comm %q is longer than %d bytes", e.Comm, CommLen)
	}

	buf := make([]byte, EventSize)
	NativeEndian.PutUint32(buf[offPID:], e.PID)
	NativeEndian.PutUint32(buf[offUID:], e.UID)
	NativeEndian.PutUint64(buf[offCgroupID:], e.CgroupID)
	NativeEndian.PutUint32(buf[offSyscallNr:], e.SyscallNr)
	NativeEndian.PutUint64(buf[offLatency:], e.Latency)
	copy(buf[offComm:], e.Comm)

	return buf, nil
}

// LatencySeconds returns the latency of the syscall in seconds.
func (e *Event) LatencySeconds() float64 {
	return float64(e.Latency) / 1e9
}
