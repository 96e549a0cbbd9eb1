//go:build !linux
// +build !linux

package syslatency

// EnsureTraceFS is not supported on OSes other than Linux.
func EnsureTraceFS() error {
	return errUnsupportedOS
}
