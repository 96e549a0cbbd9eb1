package syslatency_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/coder/syslatency"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	cat, err := syslatency.NewCatalog([]syslatency.SyscallEntry{
		{Number: 0, Name: "read"},
		{Number: 1, Name: "write"},
		{Number: 0x40000000, Name: "read"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())

	t.Run("Name", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, "read", cat.Name(0))
		require.Equal(t, "write", cat.Name(1))
		require.Equal(t, "read", cat.Name(0x40000000))
		require.Equal(t, syslatency.UnknownSyscall, cat.Name(9999))
	})

	t.Run("Numbers", func(t *testing.T) {
		t.Parallel()

		nrs, err := cat.Numbers("read")
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0x40000000}, nrs)

		// The returned slice must not alias the catalog.
		nrs[0] = 42
		nrs, err = cat.Numbers("read")
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0x40000000}, nrs)
	})

	t.Run("UnknownName", func(t *testing.T) {
		t.Parallel()

		_, err := cat.Numbers("not_a_syscall")
		require.Error(t, err)
		require.True(t, xerrors.Is(err, syslatency.ErrUnknownSyscallName))
	})
}

func TestCatalogInvalid(t *testing.T) {
	t.Parallel()

	t.Run("EmptyName", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.NewCatalog([]syslatency.SyscallEntry{{Number: 1}})
		require.Error(t, err)
	})

	t.Run("DuplicateNumber", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.NewCatalog([]syslatency.SyscallEntry{
			{Number: 1, Name: "write"},
			{Number: 1, Name: "exit"},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "defined twice")
	})
}

func TestNativeCatalog(t *testing.T) {
	t.Parallel()

	cat, err := syslatency.NewNativeCatalog()
	require.NoError(t, err)

	switch runtime.GOARCH {
	case "amd64":
		require.Equal(t, "read", cat.Name(0))
		require.Equal(t, "write", cat.Name(1))
		require.Equal(t, "execve", cat.Name(59))
		require.Equal(t, "openat", cat.Name(257))
		require.Equal(t, "clone3", cat.Name(435))

		// x32 numbers come after the native one.
		nrs, err := cat.Numbers("read")
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0x40000000}, nrs)

		nrs, err = cat.Numbers("rt_sigaction")
		require.NoError(t, err)
		require.Equal(t, []uint32{13, 0x40000200}, nrs)
	case "arm64":
		require.Equal(t, "read", cat.Name(63))
		require.Equal(t, "write", cat.Name(64))
		require.Equal(t, "execve", cat.Name(221))

		nrs, err := cat.Numbers("openat")
		require.NoError(t, err)
		require.Equal(t, []uint32{56}, nrs)
	default:
		require.Zero(t, cat.Len())
		require.Equal(t, syslatency.UnknownSyscall, cat.Name(0))
	}
}
