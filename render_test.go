package syslatency_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/syslatency"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)

	t.Run("Header", func(t *testing.T) {
		t.Parallel()

		require.Equal(t,
			"PID      UID      CGROUP_ID    SYSCALL                  LATENCY      COMMAND",
			syslatency.FormatHeader())
	})

	t.Run("Event", func(t *testing.T) {
		t.Parallel()

		line := syslatency.FormatEvent(&syslatency.Event{
			PID:       1234,
			UID:       0,
			CgroupID:  9999,
			SyscallNr: 0,
			Latency:   1_500_000_000,
			Comm:      "bash",
		}, cat)
		require.Equal(t, "1234     0        9999         read                     1.500000     bash", line)
	})

	t.Run("UnknownSyscall", func(t *testing.T) {
		t.Parallel()

		line := syslatency.FormatEvent(&syslatency.Event{
			PID:       1,
			UID:       2,
			CgroupID:  3,
			SyscallNr: 12345,
			Latency:   1000,
			Comm:      "x",
		}, cat)
		require.Equal(t, "1        2        3            unknown                  0.000001     x", line)
	})

	t.Run("Lost", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, "Lost event (CPU: 2, COUNT: 7)", syslatency.FormatLost(2, 7))
	})
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := syslatency.ParseFormat("json")
	require.NoError(t, err)
	require.Equal(t, syslatency.FormatJSON, f)

	_, err = syslatency.ParseFormat("yaml")
	require.Error(t, err)
}

func TestPrinter(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	ev := &syslatency.Event{
		PID:       1234,
		CgroupID:  9999,
		SyscallNr: 0,
		Latency:   1_500_000_000,
		Comm:      "bash",
	}

	t.Run("Text", func(t *testing.T) {
		t.Parallel()

		var out, errOut bytes.Buffer
		p, err := syslatency.NewPrinter(syslatency.PrinterOpts{
			Out:     &out,
			Err:     &errOut,
			Catalog: cat,
		})
		require.NoError(t, err)

		p.PrintHeader()
		p.HandleEvent(ev)
		p.HandleEvent(ev)
		p.HandleLost(2, 7)

		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		require.Equal(t, syslatency.FormatHeader(), lines[0])
		require.Equal(t, syslatency.FormatEvent(ev, cat), lines[1])
		require.Equal(t, lines[1], lines[2])

		require.Equal(t, "Lost event (CPU: 2, COUNT: 7)\n", errOut.String())
	})

	t.Run("HeaderBeforeFirstEvent", func(t *testing.T) {
		t.Parallel()

		var out, errOut bytes.Buffer
		p, err := syslatency.NewPrinter(syslatency.PrinterOpts{
			Out:     &out,
			Err:     &errOut,
			Catalog: cat,
		})
		require.NoError(t, err)

		// Loss notifications don't go to the output stream.
		p.HandleLost(0, 1)
		require.Empty(t, out.String())

		p.HandleEvent(ev)
		require.Equal(t, syslatency.FormatHeader()+"\n"+syslatency.FormatEvent(ev, cat)+"\n", out.String())
	})

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()

		var out, errOut bytes.Buffer
		p, err := syslatency.NewPrinter(syslatency.PrinterOpts{
			Out:     &out,
			Err:     &errOut,
			Catalog: cat,
			Format:  syslatency.FormatJSON,
		})
		require.NoError(t, err)

		p.PrintHeader()
		p.HandleEvent(ev)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Equal(t, map[string]interface{}{
			"pid":             float64(1234),
			"uid":             float64(0),
			"cgroup_id":       float64(9999),
			"syscall_nr":      float64(0),
			"syscall":         "read",
			"latency_ns":      float64(1_500_000_000),
			"latency_seconds": 1.5,
			"comm":            "bash",
		}, got)
	})

	t.Run("InvalidOpts", func(t *testing.T) {
		t.Parallel()

		_, err := syslatency.NewPrinter(syslatency.PrinterOpts{Catalog: cat})
		require.Error(t, err)

		_, err = syslatency.NewPrinter(syslatency.PrinterOpts{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}})
		require.Error(t, err)

		_, err = syslatency.NewPrinter(syslatency.PrinterOpts{
			Out:     &bytes.Buffer{},
			Err:     &bytes.Buffer{},
			Catalog: cat,
			Format:  "xml",
		})
		require.Error(t, err)
	})
}
