//go:build linux
// +build linux

package syslatency

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// copySource copies opts.Source and every header next to it into
// opts.TempDir.
func copySource(opts CompileOptions) error {
	srcDir, srcName := filepath.Split(opts.Source)
	if srcDir == "" {
		srcDir = "."
	}
	srcFS := os.DirFS(srcDir)

	ents, err := fs.ReadDir(srcFS, ".")
	if err != nil {
		return xerrors.Errorf("read source dir %q: %w", srcDir, err)
	}

	found := false
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if name == srcName {
			found = true
		} else if filepath.Ext(name) != ".h" {
			continue
		}

		dest := filepath.Join(opts.TempDir, name)
		err = copySourceFile(srcFS, name, dest)
		if err != nil {
			return xerrors.Errorf("copy file %q to dest %q: %w", filepath.Join(srcDir, name), dest, err)
		}
	}
	if !found {
		return xerrors.Errorf("source file %q: %w", opts.Source, fs.ErrNotExist)
	}

	return nil
}

func copySourceFile(srcFS fs.FS, src, dest string) error {
	srcFile, err := srcFS.Open(src)
	if err != nil {
		return xerrors.Errorf("open source file %q: %w", src, err)
	}
	defer srcFile.Close()

	// Ensure the parent directory of the file.
	dir := filepath.Dir(dest)
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return xerrors.Errorf("ensure parent directory %q for file %q in %q: %w", dir, src, dest, err)
	}

	// Open the destination file with O_CREATE and O_EXCL, which means the
	// file will be created for us, and if it already existed an error will
	// be returned.
	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return xerrors.Errorf("create (excl) destination file %q: %w", dest, err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, srcFile)
	if err != nil {
		return xerrors.Errorf("copy file from source %q to destination file %q: %w", src, dest, err)
	}
	return nil
}
