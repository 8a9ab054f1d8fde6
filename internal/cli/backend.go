package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/LucaXiang/Crab-sub002/internal/catalog"
	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/gateway"
	"github.com/LucaXiang/Crab-sub002/internal/pgstore"
	"github.com/LucaXiang/Crab-sub002/internal/store"
)

// eventLog is an event log that must be closed.
type eventLog interface {
	engine.EventLog
	io.Closer
}

// backend is an open event log with the engine built on it.
type backend struct {
	log     eventLog
	seq     *engine.Sequencer
	gateway *gateway.Gateway
}

func (b *backend) Close() {
	b.seq.Close()
	if err := b.log.Close(); err != nil {
		slog.Warn("close event log", "error", err)
	}
}

func openLog(ctx context.Context, opts *RootOptions) (eventLog, error) {
	switch opts.Driver {
	case "postgres":
		return pgstore.Open(ctx, opts.Database)
	default:
		return store.Open(opts.Database)
	}
}

// openBackend opens the event log, rebuilds the projection and wires the
// gateway with the rule catalog when --rules is set.
func openBackend(ctx context.Context, opts *RootOptions, seqOpts ...engine.SequencerOption) (*backend, error) {
	var gwOpts []gateway.Option
	if opts.Rules != "" {
		cat, err := catalog.Load(opts.Rules)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
		}
		gwOpts = append(gwOpts, gateway.WithRules(cat))
	}

	log, err := openLog(ctx, opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	seq, err := engine.NewSequencer(ctx, log, seqOpts...)
	if err != nil {
		_ = log.Close()
		return nil, WrapExitError(ExitCommandError, "failed to rebuild projection", err)
	}
	slog.Debug("event log opened",
		"driver", opts.Driver,
		"seq", seq.Current(),
		"epoch", seq.Epoch(),
	)
	return &backend{log: log, seq: seq, gateway: gateway.New(seq, gwOpts...)}, nil
}

func formatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
