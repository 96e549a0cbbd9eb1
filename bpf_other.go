//go:build !linux
// +build !linux

package syslatency

import (
	"io"
)

// BPFObjects contains a loaded probe.
type BPFObjects interface {
	io.Closer
}

// LoadBPFObjects is not supported on OSes other than Linux.
func LoadBPFObjects(_ io.ReaderAt, _ FilterConfig) (BPFObjects, error) {
	return nil, errUnsupportedOS
}
