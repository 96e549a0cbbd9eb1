package syslatency

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"cdr.dev/slog"
	"golang.org/x/xerrors"
)

// DefaultPollInterval bounds how long a single poll blocks, and therefore how
// long it takes for the consumer to notice that it should stop.
const DefaultPollInterval = 100 * time.Millisecond

// State is the state of a Consumer.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// ConsumerOpts contains optional settings for a Consumer.
type ConsumerOpts struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Logger receives records that could not be decoded. Defaults to a
	// logger with no sinks.
	Logger slog.Logger
	// Metrics is updated for every record if set.
	Metrics *Metrics
}

// Consumer polls a RecordReader, decodes every record and hands the result
// to a Handler.
type Consumer struct {
	r     RecordReader
	h     Handler
	opts  ConsumerOpts
	state atomic.Int32
}

// NewConsumer creates a Consumer. Run must be called to start polling.
func NewConsumer(r RecordReader, h Handler, opts ConsumerOpts) *Consumer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Consumer{
		r:    r,
		h:    h,
		opts: opts,
	}
}

// State returns the current state of the consumer.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Run polls until the reader is closed, ctx is canceled or reading fails.
// A closed reader ends the loop cleanly and returns nil; a canceled context
// returns ctx.Err(). Any other read error is fatal and returned.
//
// Records that fail to decode are logged and skipped, they never stop the
// loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.state.Store(int32(StatePolling))
	defer c.state.Store(int32(StateTerminated))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.r.SetDeadline(time.Now().Add(c.opts.PollInterval))
		record, err := c.r.Read()
		if err != nil {
			if xerrors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if xerrors.Is(err, ErrReaderClosed) {
				return nil
			}
			return xerrors.Errorf("poll probe records: %w", err)
		}

		c.handle(ctx, record)
	}
}

func (c *Consumer) handle(ctx context.Context, record Record) {
	if record.LostSamples > 0 {
		c.opts.Metrics.lost(record.CPU, record.LostSamples)
		c.h.HandleLost(record.CPU, record.LostSamples)
		return
	}

	ev, err := DecodeEvent(record.RawSample)
	if err != nil {
		c.opts.Metrics.decodeError()
		c.opts.Logger.Error(ctx, "skipping record that failed to decode",
			slog.F("cpu", record.CPU),
			slog.F("size", len(record.RawSample)),
			slog.Error(err),
		)
		return
	}

	c.opts.Metrics.event()
	c.h.HandleEvent(ev)
}
