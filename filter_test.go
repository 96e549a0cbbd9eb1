package syslatency_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/coder/syslatency"
)

type constantWriter struct {
	values map[string]interface{}
	fail   string
}

func (w *constantWriter) SetConstant(name string, value interface{}) error {
	if name == w.fail {
		return xerrors.New("no such variable")
	}
	if w.values == nil {
		w.values = map[string]interface{}{}
	}
	w.values[name] = value
	return nil
}

func testCatalog(t *testing.T) *syslatency.Catalog {
	t.Helper()

	cat, err := syslatency.NewCatalog([]syslatency.SyscallEntry{
		{Number: 0, Name: "read"},
		{Number: 1, Name: "write"},
		{Number: 59, Name: "execve"},
		{Number: 0x40000000, Name: "read"},
	})
	require.NoError(t, err)
	return cat
}

func TestNewFilterConfig(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)

	t.Run("NoFilter", func(t *testing.T) {
		t.Parallel()

		cfg, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{})
		require.NoError(t, err)
		require.EqualValues(t, os.Getpid(), cfg.SelfPID)
		require.False(t, cfg.ContainerOnly)
		require.Equal(t, syslatency.NoSyscallFilter, cfg.TargetSyscall)
		require.False(t, cfg.Filtered())
	})

	t.Run("Syscall", func(t *testing.T) {
		t.Parallel()

		cfg, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{
			ContainerOnly: true,
			Syscall:       "execve",
		})
		require.NoError(t, err)
		require.True(t, cfg.ContainerOnly)
		require.EqualValues(t, 59, cfg.TargetSyscall)
		require.True(t, cfg.Filtered())
	})

	t.Run("FirstNumber", func(t *testing.T) {
		t.Parallel()

		cfg, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{Syscall: "read"})
		require.NoError(t, err)
		require.EqualValues(t, 0, cfg.TargetSyscall)
		require.True(t, cfg.Filtered())
	})

	t.Run("UnknownSyscall", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{Syscall: "frobnicate"})
		require.Error(t, err)
		require.True(t, xerrors.Is(err, syslatency.ErrUnknownSyscallName))
	})
}

func TestFilterConfigApply(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()

		cfg := syslatency.FilterConfig{
			SelfPID:       4321,
			ContainerOnly: true,
			TargetSyscall: 1,
		}
		w := &constantWriter{}
		require.NoError(t, cfg.Apply(w))
		require.Equal(t, map[string]interface{}{
			"pid_self":             uint32(4321),
			"only_trace_container": uint8(1),
			"trace_syscall":        int32(1),
		}, w.values)
	})

	t.Run("Unfiltered", func(t *testing.T) {
		t.Parallel()

		cfg := syslatency.FilterConfig{SelfPID: 1, TargetSyscall: syslatency.NoSyscallFilter}
		w := &constantWriter{}
		require.NoError(t, cfg.Apply(w))
		require.Equal(t, uint8(0), w.values["only_trace_container"])
		require.Equal(t, int32(-1), w.values["trace_syscall"])
	})

	t.Run("Error", func(t *testing.T) {
		t.Parallel()

		w := &constantWriter{fail: "only_trace_container"}
		err := syslatency.FilterConfig{}.Apply(w)
		require.Error(t, err)
		require.Contains(t, err.Error(), `"only_trace_container"`)
	})
}
