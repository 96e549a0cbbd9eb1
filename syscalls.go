package syslatency

import (
	"runtime"

	"golang.org/x/xerrors"
)

// UnknownSyscall is the name rendered for syscall numbers that are not in the
// catalog. An unresolved number is a display degradation, not an error.
const UnknownSyscall = "unknown"

// ErrUnknownSyscallName is returned when a syscall name cannot be resolved to
// any syscall number on the current architecture.
var ErrUnknownSyscallName = xerrors.New("unknown syscall name")

// SyscallEntry maps a single syscall number to its canonical name.
type SyscallEntry struct {
	Number uint32
	Name   string
}

// Catalog is an immutable two-way mapping between syscall numbers and names.
// A Catalog is built once at startup and is safe for concurrent reads.
//
// Some names map to more than one number (e.g. x32 variants on amd64). The
// numbers for a name are kept in the order the entries were supplied, which is
// the canonical order for the architecture table: native numbers first.
type Catalog struct {
	names   map[uint32]string
	numbers map[string][]uint32
}

// NewCatalog builds a Catalog from the given entries. Entries with an empty
// name or a number that was already seen are rejected.
func NewCatalog(entries []SyscallEntry) (*Catalog, error) {
	c := &Catalog{
		names:   make(map[uint32]string, len(entries)),
		numbers: make(map[string][]uint32, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, xerrors.Errorf("syscall %d has an empty name", e.Number)
		}
		if existing, ok := c.names[e.Number]; ok {
			return nil, xerrors.Errorf("syscall %d is defined twice (%q and %q)", e.Number, existing, e.Name)
		}
		c.names[e.Number] = e.Name
		c.numbers[e.Name] = append(c.numbers[e.Name], e.Number)
	}

	return c, nil
}

// NewNativeCatalog builds the Catalog for the architecture this binary was
// compiled for. Architectures without a table get an empty catalog, so every
// syscall renders as UnknownSyscall.
func NewNativeCatalog() (*Catalog, error) {
	c, err := NewCatalog(nativeSyscalls)
	if err != nil {
		return nil, xerrors.Errorf("build %s syscall catalog: %w", runtime.GOARCH, err)
	}
	return c, nil
}

// Name returns the name of the given syscall number, or UnknownSyscall if the
// number is not in the catalog.
func (c *Catalog) Name(nr uint32) string {
	if name, ok := c.names[nr]; ok {
		return name
	}
	return UnknownSyscall
}

// Numbers returns every syscall number with the given name in canonical
// order. The returned slice is never empty and is a copy owned by the caller.
func (c *Catalog) Numbers(name string) ([]uint32, error) {
	nrs, ok := c.numbers[name]
	if !ok {
		return nil, xerrors.Errorf("resolve %q: %w", name, ErrUnknownSyscallName)
	}

	out := make([]uint32, len(nrs))
	copy(out, nrs)
	return out, nil
}

// Len returns the number of syscall numbers in the catalog.
func (c *Catalog) Len() int {
	return len(c.names)
}
