package syslatency

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/xerrors"
)

// Format is an output format for the Printer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Formats lists every supported output format.
var Formats = []Format{FormatText, FormatJSON}

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", xerrors.Errorf(`output format must be "text" or "json", got %q`, s)
}

const lineFormat = "%-8v %-8v %-12v %-24v %-12v %v"

// FormatHeader returns the column header for text output, without a trailing
// newline.
func FormatHeader() string {
	return fmt.Sprintf(lineFormat, "PID", "UID", "CGROUP_ID", "SYSCALL", "LATENCY", "COMMAND")
}

// FormatEvent renders an event as a text line in the same column order as
// FormatHeader, without a trailing newline. Latency is printed in seconds.
func FormatEvent(ev *Event, cat *Catalog) string {
	return fmt.Sprintf(lineFormat,
		ev.PID,
		ev.UID,
		ev.CgroupID,
		cat.Name(ev.SyscallNr),
		fmt.Sprintf("%.6f", ev.LatencySeconds()),
		ev.Comm,
	)
}

// FormatLost renders a lost sample notification.
func FormatLost(cpu int, count uint64) string {
	return fmt.Sprintf("Lost event (CPU: %d, COUNT: %d)", cpu, count)
}

// jsonEvent is the JSON output form of an Event.
type jsonEvent struct {
	*Event
	Syscall        string  `json:"syscall"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// PrinterOpts configures a Printer.
type PrinterOpts struct {
	// Out receives the header and events. Required.
	Out io.Writer
	// Err receives lost sample notifications. Required.
	Err io.Writer
	// Catalog resolves syscall names. Required.
	Catalog *Catalog
	// Format defaults to FormatText.
	Format Format
}

// Printer renders events to an output stream and lost sample notifications
// to an error stream. It implements Handler.
type Printer struct {
	opts PrinterOpts
	enc  *json.Encoder

	headerOnce sync.Once
}

var _ Handler = &Printer{}

// NewPrinter creates a Printer.
func NewPrinter(opts PrinterOpts) (*Printer, error) {
	if opts.Out == nil || opts.Err == nil {
		return nil, xerrors.New("printer output streams are required")
	}
	if opts.Catalog == nil {
		return nil, xerrors.New("printer catalog is required")
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if _, err := ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	return &Printer{
		opts: opts,
		enc:  json.NewEncoder(opts.Out),
	}, nil
}

// PrintHeader writes the header line if it hasn't been written yet. JSON
// output has no header.
func (p *Printer) PrintHeader() {
	p.headerOnce.Do(func() {
		if p.opts.Format == FormatText {
			_, _ = fmt.Fprintln(p.opts.Out, FormatHeader())
		}
	})
}

// HandleEvent writes a single event, preceded by the header if this is the
// first one.
func (p *Printer) HandleEvent(ev *Event) {
	p.PrintHeader()

	if p.opts.Format == FormatJSON {
		_ = p.enc.Encode(jsonEvent{
			Event:          ev,
			Syscall:        p.opts.Catalog.Name(ev.SyscallNr),
			LatencySeconds: ev.LatencySeconds(),
		})
		return
	}
	_, _ = fmt.Fprintln(p.opts.Out, FormatEvent(ev, p.opts.Catalog))
}

// HandleLost writes a lost sample notification to the error stream.
func (p *Printer) HandleLost(cpu int, count uint64) {
	_, _ = fmt.Fprintln(p.opts.Err, FormatLost(cpu, count))
}
