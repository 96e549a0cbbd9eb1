//go:build !linux
// +build !linux

package syslatency

// NewTracer is not supported on OSes other than Linux.
func NewTracer(_ BPFObjects, _ *TracerOpts) (Tracer, error) {
	return nil, errUnsupportedOS
}
