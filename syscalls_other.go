//go:build !amd64 && !arm64
// +build !amd64,!arm64

package syslatency

// No table is maintained for this architecture, every syscall number renders
// as UnknownSyscall.
var nativeSyscalls []SyscallEntry
