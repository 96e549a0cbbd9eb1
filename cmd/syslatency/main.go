package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/coder/syslatency"
)

// suitableCompilers contains suitable clang compilers that syslatency will
// look for if a compiler isn't specified in the flags.
var suitableCompilers = []string{
	"clang-18",
	"clang-17",
	"clang-16",
	"clang-15",
	"clang-14",
	"clang",
}

func main() {
	ctx := context.Background()
	err := rootCmd().ExecuteContext(ctx)
	if err != nil {
		slog.Make(sloghuman.Sink(os.Stderr)).Fatal(ctx, "failed to run command", slog.Error(err))
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syslatency",
		Short: "syslatency prints the latency of every syscall on the system.",
		Long: "syslatency attaches an eBPF probe to the raw_syscalls tracepoints " +
			"and prints one line per completed syscall with its latency in " +
			"seconds. Every flag can also be set with a SYSLATENCY_* " +
			"environment variable, e.g. SYSLATENCY_CONTAINER_ONLY=true.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			opts, err := loadOptions(v)
			if err != nil {
				return xerrors.Errorf("invalid options: %w", err)
			}

			log := opts.logger(cmd.ErrOrStderr())
			return run(cmd.Context(), log, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	addFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, log slog.Logger, opts options, stdout, stderr io.Writer) error {
	cat, err := syslatency.NewNativeCatalog()
	if err != nil {
		return xerrors.Errorf("build syscall catalog: %w", err)
	}
	if cat.Len() == 0 {
		log.Warn(ctx, "no syscall table for this architecture, every syscall will render as unknown")
	}

	// Resolve the filter before touching the kernel so a bad syscall name
	// fails fast.
	filter, err := syslatency.NewFilterConfig(cat, syslatency.FilterOptions{
		ContainerOnly: opts.ContainerOnly,
		Syscall:       opts.Syscall,
	})
	if err != nil {
		return xerrors.Errorf("resolve filter: %w", err)
	}
	log.Debug(ctx, "resolved filter",
		slog.F("self_pid", filter.SelfPID),
		slog.F("container_only", filter.ContainerOnly),
		slog.F("target_syscall", filter.TargetSyscall),
	)

	if opts.MountTraceFS {
		err = syslatency.EnsureTraceFS()
		if err != nil {
			return xerrors.Errorf("prepare tracefs: %w", err)
		}
	}

	obj, err := loadObject(ctx, log, opts)
	if err != nil {
		return err
	}

	objs, err := syslatency.LoadBPFObjects(bytes.NewReader(obj), filter)
	if err != nil {
		return xerrors.Errorf("load probe: %w", err)
	}
	defer func() {
		err := objs.Close()
		if err != nil {
			log.Error(ctx, "failed to close probe objects", slog.Error(err))
		}
	}()

	var metrics *syslatency.Metrics
	if opts.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		metrics, err = syslatency.NewMetrics(reg)
		if err != nil {
			return xerrors.Errorf("create metrics: %w", err)
		}
		closeMetrics, err := serveMetrics(ctx, log, opts.MetricsListen, reg)
		if err != nil {
			return err
		}
		defer closeMetrics()
	}

	printer, err := syslatency.NewPrinter(syslatency.PrinterOpts{
		Out:     stdout,
		Err:     stderr,
		Catalog: cat,
		Format:  opts.Output,
	})
	if err != nil {
		return xerrors.Errorf("create printer: %w", err)
	}

	t, err := syslatency.NewTracer(objs, &syslatency.TracerOpts{
		PerCPUBufferSize: opts.BufferPages * os.Getpagesize(),
		Logger:           log.Named("consumer"),
		Metrics:          metrics,
	})
	if err != nil {
		return xerrors.Errorf("create tracer: %w", err)
	}

	var closeOnce sync.Once
	closeTracer := func() {
		closeOnce.Do(func() {
			err := t.Close()
			if err != nil {
				log.Error(ctx, "failed to close tracer", slog.Error(err))
			}
		})
	}
	defer closeTracer()

	err = t.Start()
	if err != nil {
		return xerrors.Errorf("start tracer: %w", err)
	}

	// Closing the tracer makes Run return nil within one poll interval.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case sig := <-signals:
			log.Info(ctx, "signal received, closing tracer", slog.F("signal", sig.String()))
			closeTracer()
		case <-ctx.Done():
		}
	}()

	printer.PrintHeader()
	log.Info(ctx, "waiting for events")
	err = t.Run(ctx, printer)
	if err != nil {
		return xerrors.Errorf("consume events: %w", err)
	}

	return nil
}

// loadObject returns the probe ELF, either read from opts.Object or compiled
// from opts.Source.
func loadObject(ctx context.Context, log slog.Logger, opts options) ([]byte, error) {
	if opts.Object != "" {
		obj, err := os.ReadFile(opts.Object)
		if err != nil {
			return nil, xerrors.Errorf("read probe object: %w", err)
		}
		return obj, nil
	}

	compiler := opts.Compiler
	if compiler == "" {
		var err error
		compiler, err = findCompiler()
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "using detected compiler", slog.F("compiler", compiler))
	}

	obj, err := syslatency.CompileProgram(ctx, syslatency.CompileOptions{
		Compiler: compiler,
		Source:   opts.Source,
	})
	if err != nil {
		return nil, xerrors.Errorf("compile probe: %w", err)
	}
	return obj, nil
}

func findCompiler() (string, error) {
	for _, c := range suitableCompilers {
		path, err := exec.LookPath(c)
		if err == nil {
			return path, nil
		}
	}

	return "", xerrors.New("could not find suitable compiler in PATH")
}

// serveMetrics starts a Prometheus endpoint at /metrics. The returned func
// stops the server.
func serveMetrics(ctx context.Context, log slog.Logger, addr string, reg *prometheus.Registry) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("listen %q on tcp: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
	}

	go func() {
		err := srv.Serve(l)
		if err != nil && !xerrors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", slog.Error(err))
		}
	}()
	log.Info(ctx, "serving metrics", slog.F("addr", l.Addr().String()))

	return func() { _ = srv.Close() }, nil
}
