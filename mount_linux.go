//go:build linux
// +build linux

package syslatency

import (
	"os"
	"strings"

	"golang.org/x/xerrors"
	"k8s.io/mount-utils"
)

const (
	debugFS           = "debugfs"
	debugFSMountpoint = "/sys/kernel/debug"
	traceFS           = "tracefs"
	traceFSMountpoint = debugFSMountpoint + "/tracing"
)

// EnsureTraceFS makes sure debugfs is mounted at /sys/kernel/debug and tracefs
// at /sys/kernel/debug/tracing, mounting them if needed. Tracepoints can't be
// attached without tracefs. Minimal containers often don't have it.
func EnsureTraceFS() error {
	m := mount.New("")
	err := ensureVirtualMountpoint(m, debugFS, debugFSMountpoint, nil)
	if err != nil {
		return xerrors.Errorf("ensure debugfs mounted: %w", err)
	}
	err = ensureVirtualMountpoint(m, traceFS, traceFSMountpoint, nil)
	if err != nil {
		return xerrors.Errorf("ensure tracefs mounted: %w", err)
	}

	return nil
}

func ensureVirtualMountpoint(mounter mount.Interface, mountType, dest string, opts []string) error {
	if len(opts) == 0 {
		opts = []string{"rw", "nosuid", "nodev", "noexec", "relatime"}
	}

	mounts, err := mounter.List()
	if err != nil {
		return xerrors.Errorf("list mounts: %w", err)
	}
	for _, m := range mounts {
		// The device doesn't matter for virtual filesystems. It's "none" on
		// some systems and the mount type on others.
		if m.Path == dest {
			if m.Type != mountType {
				return xerrors.Errorf("mount already exists at %q with incorrect type %q", m.Path, m.Type)
			}

			return nil
		}
	}

	err = os.MkdirAll(dest, 0o744)
	if err != nil {
		return xerrors.Errorf("mkdir -p %q: %w", dest, err)
	}
	err = mounter.Mount(mountType, dest, mountType, opts)
	if err != nil {
		return xerrors.Errorf("mount -t %q -o %q %q %q: %w", mountType, strings.Join(opts, ","), mountType, dest, err)
	}

	return nil
}
