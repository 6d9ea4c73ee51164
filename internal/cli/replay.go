package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/demo"
	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/harness"
	"github.com/roach88/fbexec/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Timeout time.Duration
}

// ReplayResourceResult holds the replay result of one resource.
type ReplayResourceResult struct {
	Name     string `json:"name"`
	Records  int    `json:"records"`
	External int    `json:"external"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Network   string                 `json:"network"`
	Resources []ReplayResourceResult `json:"resources"`
	Identical bool                   `json:"identical"`
}

func (r ReplayResult) String() string {
	s := fmt.Sprintf("Replay of %s: %d resource(s)", r.Network, len(r.Resources))
	for _, res := range r.Resources {
		s += fmt.Sprintf("\n  ✓ %s: %d records, %d external events", res.Name, res.Records, res.External)
	}
	return s
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <network> <trace-dir>",
		Short: "Replay captured traces and compare the result",
		Long: `Rebuild a network with the manual scheduler, drive it through the
external events of the captured traces, and require the replayed traces to
equal the captured ones record for record.

Exits 1 when the traces differ or replay aborts.

Example:
  fbexec replay counter-switch ./traces`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayTraces(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "maximum time for the replay")

	return cmd
}

func replayTraces(cmd *cobra.Command, opts *ReplayOptions, network, dir string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	captured, err := readTraces(dir)
	if err != nil {
		return err
	}
	external := trace.ExternalEvents(captured)

	sink := trace.NewMemorySink()
	net, err := demo.Build(network, demo.ReplayConfig(cfg), sink, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build network", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	replayErr := replayNetwork(ctx, net, external)
	if err := net.Close(); err != nil && replayErr == nil {
		replayErr = err
	}

	f := opts.formatter(cmd)
	if replayErr != nil {
		if engine.IsReplayError(replayErr) || errors.Is(replayErr, context.DeadlineExceeded) {
			_ = f.Error(CodeReplay, replayErr.Error(), nil)
			return WrapExitError(ExitFailure, "replay aborted", replayErr)
		}
		return WrapExitError(ExitCommandError, "replay failed", replayErr)
	}

	replayed := sink.All()
	if err := harness.Check(captured, replayed); err != nil {
		var me *harness.MismatchError
		if errors.As(err, &me) {
			logger.Info("replay diverged", zap.Int("mismatches", len(me.Mismatches)))
			details := make([]string, 0, len(me.Mismatches))
			for _, m := range me.Mismatches {
				details = append(details, m.String())
			}
			_ = f.Error(CodeMismatch, me.Error(), details)
		}
		return WrapExitError(ExitFailure, "replayed traces differ", err)
	}

	result := ReplayResult{Network: network, Identical: true}
	names := make([]string, 0, len(captured))
	for n := range captured {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		result.Resources = append(result.Resources, ReplayResourceResult{
			Name:     n,
			Records:  len(captured[n]),
			External: len(external[n]),
		})
	}
	return f.Success(result)
}

func replayNetwork(ctx context.Context, net *demo.Network, external map[string][]trace.EventMessage) error {
	if err := net.Start(ctx); err != nil {
		return err
	}
	return harness.Replay(ctx, net.Device, external)
}
