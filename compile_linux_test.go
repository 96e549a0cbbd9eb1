//go:build linux
// +build linux

package syslatency_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/syslatency"
)

// fakeCompiler writes a shell script that concatenates the probe source and
// its header into the output file.
func fakeCompiler(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-clang")
	script := "#!/bin/sh\nset -e\ncat probe.c common.h > probe.o\n"
	//nolint:gosec
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func writeSource(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe.c"), []byte("int probe;\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.h"), []byte("#define X 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs\n"), 0o600))
	return filepath.Join(dir, "probe.c")
}

func TestCompileProgram(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		out, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler: fakeCompiler(t),
			Source:   writeSource(t),
			TempDir:  tempDir,
		})
		require.NoError(t, err)
		require.Equal(t, "int probe;\n#define X 1\n", string(out))

		// Only the source and headers are copied.
		require.FileExists(t, filepath.Join(tempDir, "probe.c"))
		require.FileExists(t, filepath.Join(tempDir, "common.h"))
		require.NoFileExists(t, filepath.Join(tempDir, "README.md"))
	})

	t.Run("ExistingFile", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "probe.c"), nil, 0o600))

		_, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler: fakeCompiler(t),
			Source:   writeSource(t),
			TempDir:  tempDir,
		})
		require.Error(t, err)
	})

	t.Run("MissingSource", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler: fakeCompiler(t),
			Source:   filepath.Join(t.TempDir(), "missing.c"),
		})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("CompilerFails", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler: "false",
			Source:   writeSource(t),
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "running compiler failed")
	})

	t.Run("BadEndianness", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler:   fakeCompiler(t),
			Source:     writeSource(t),
			Endianness: "middle",
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown endianness")
	})
}
