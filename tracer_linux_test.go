//go:build linux
// +build linux

package syslatency_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/stretchr/testify/require"

	"github.com/coder/syslatency"
)

// probeObject returns the probe ELF used by the kernel tests. It is read from
// SYSLATENCY_TEST_OBJECT or compiled from SYSLATENCY_TEST_SOURCE with clang.
func probeObject(t *testing.T) []byte {
	t.Helper()

	// This test must be run as root so we can load the probe.
	if os.Geteuid() != 0 {
		t.Skip("must be run as root")
	}

	if path := os.Getenv("SYSLATENCY_TEST_OBJECT"); path != "" {
		obj, err := os.ReadFile(path)
		require.NoError(t, err)
		return obj
	}
	if path := os.Getenv("SYSLATENCY_TEST_SOURCE"); path != "" {
		obj, err := syslatency.CompileProgram(context.Background(), syslatency.CompileOptions{
			Compiler: "clang",
			Source:   path,
		})
		require.NoError(t, err)
		return obj
	}

	t.Skip("SYSLATENCY_TEST_OBJECT or SYSLATENCY_TEST_SOURCE must be set")
	return nil
}

type chanHandler struct {
	events chan *syslatency.Event
}

func (h chanHandler) HandleEvent(ev *syslatency.Event) {
	select {
	case h.events <- ev:
	default:
	}
}

func (chanHandler) HandleLost(int, uint64) {}

//nolint:paralleltest
func TestTracer(t *testing.T) {
	obj := probeObject(t)

	cat, err := syslatency.NewNativeCatalog()
	require.NoError(t, err)
	if cat.Len() == 0 {
		t.Skip("no syscall table for this architecture")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	filter, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{Syscall: "getcwd"})
	require.NoError(t, err)

	objs, err := syslatency.LoadBPFObjects(bytes.NewReader(obj), filter)
	require.NoError(t, err)
	defer objs.Close()

	tracer, err := syslatency.NewTracer(objs, &syslatency.TracerOpts{
		Logger: slogtest.Make(t, nil),
	})
	require.NoError(t, err)
	defer tracer.Close()
	require.NoError(t, tracer.Start())
	require.Error(t, tracer.Start(), "second start should fail")

	h := chanHandler{events: make(chan *syslatency.Event, 64)}
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = tracer.Run(ctx, h)
	}()

	// pwd calls getcwd. Our own process is filtered out.
	processDone := spamProcess(ctx, t, []string{"pwd"})

	var ev *syslatency.Event
	for ev == nil {
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		case e := <-h.events:
			t.Logf("event: %+v", e)
			require.Equal(t, "getcwd", cat.Name(e.SyscallNr), "filtered to a single syscall")
			require.NotEqualValues(t, os.Getpid(), e.PID, "own PID should be filtered")
			if e.Comm == "pwd" {
				ev = e
			}
		}
	}
	require.NotZero(t, ev.PID)
	require.NotZero(t, ev.CgroupID)

	// Closing the tracer stops Run cleanly.
	require.NoError(t, tracer.Close())
	wg.Wait()
	require.NoError(t, runErr)

	cancel()
	<-processDone
}

// spamProcess runs the given command every 100ms. The returned channel is
// closed when the goroutine exits (either if there's a problem or if the
// context is canceled).
func spamProcess(ctx context.Context, t *testing.T, args []string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			//nolint:gosec
			cmd := exec.CommandContext(ctx, args[0], args[1:]...)
			_, err := cmd.CombinedOutput()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.Errorf("command launch failure in spamProcess: %+v", err)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	return done
}
