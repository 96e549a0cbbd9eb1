package main

import (
	"io"
	"strings"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"cdr.dev/slog/sloggers/slogjson"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/coder/syslatency"
)

const envPrefix = "SYSLATENCY"

// options holds every setting for a run. Each one can be set with a flag or
// a SYSLATENCY_* environment variable, flags win.
type options struct {
	ContainerOnly bool
	Syscall       string

	Object   string
	Source   string
	Compiler string

	Output        syslatency.Format
	BufferPages   int
	MetricsListen string
	MountTraceFS  bool

	LogLevel slog.Level
	LogJSON  bool
}

func addFlags(fs *pflag.FlagSet) {
	fs.BoolP("container-only", "c", false, "Only trace processes that are not in the host PID namespace")
	fs.StringP("syscall", "s", "", "Only trace the syscall with this name, e.g. \"read\"")
	fs.String("object", "", "Path to the compiled probe ELF object")
	fs.String("source", "", "Path to the probe C source, compiled at startup when --object is not set")
	fs.String("compiler", "", "Compiler executable name or path (defaults to the first suitable clang compiler found)")
	fs.StringP("output", "f", string(syslatency.FormatText), "Output format, text or json")
	fs.Int("buffer-pages", syslatency.DefaultPerCPUBufferPages, "Size of each per-CPU buffer in memory pages")
	fs.String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. \":9090\"")
	fs.Bool("mount-tracefs", true, "Mount debugfs and tracefs if they are missing")
	fs.String("log-level", "info", "Log level, one of debug, info, warn or error")
	fs.Bool("log-json", false, "Write logs as JSON")
}

// newViper binds fs to a viper instance that also reads SYSLATENCY_*
// environment variables, e.g. SYSLATENCY_CONTAINER_ONLY=true.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	err := v.BindPFlags(fs)
	if err != nil {
		return nil, xerrors.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func loadOptions(v *viper.Viper) (options, error) {
	opts := options{
		ContainerOnly: v.GetBool("container-only"),
		Syscall:       strings.TrimSpace(v.GetString("syscall")),
		Object:        v.GetString("object"),
		Source:        v.GetString("source"),
		Compiler:      v.GetString("compiler"),
		BufferPages:   v.GetInt("buffer-pages"),
		MetricsListen: v.GetString("metrics-listen"),
		MountTraceFS:  v.GetBool("mount-tracefs"),
		LogJSON:       v.GetBool("log-json"),
	}

	var err error
	opts.Output, err = syslatency.ParseFormat(v.GetString("output"))
	if err != nil {
		return options{}, err
	}
	opts.LogLevel, err = parseLogLevel(v.GetString("log-level"))
	if err != nil {
		return options{}, err
	}

	if opts.Object != "" && opts.Source != "" {
		return options{}, xerrors.New("only one of --object and --source can be set")
	}
	if opts.Object == "" && opts.Source == "" {
		return options{}, xerrors.New("one of --object or --source must be set")
	}
	if opts.BufferPages <= 0 {
		return options{}, xerrors.Errorf("--buffer-pages must be positive, got %d", opts.BufferPages)
	}

	return opts, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, xerrors.Errorf(`log level must be one of "debug", "info", "warn" or "error", got %q`, s)
	}
}

func (o options) logger(w io.Writer) slog.Logger {
	sink := sloghuman.Sink(w)
	if o.LogJSON {
		sink = slogjson.Sink(w)
	}
	return slog.Make(sink).Leveled(o.LogLevel)
}
