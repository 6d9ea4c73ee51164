package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/demo"
	"github.com/roach88/fbexec/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	TraceDir string
	Timeout  time.Duration
}

// ResourceSummary describes one resource after a run.
type ResourceSummary struct {
	Name         string `json:"name"`
	EventCounter uint64 `json:"event_counter"`
	Records      int    `json:"records,omitempty"`
}

// RunResult is the output of the run command.
type RunResult struct {
	Network   string            `json:"network"`
	TraceDir  string            `json:"trace_dir,omitempty"`
	Resources []ResourceSummary `json:"resources"`
}

func (r RunResult) String() string {
	s := fmt.Sprintf("Network %s settled", r.Network)
	for _, res := range r.Resources {
		s += fmt.Sprintf("\n  %s: event counter %d", res.Name, res.EventCounter)
		if res.Records > 0 {
			s += fmt.Sprintf(", %d records", res.Records)
		}
	}
	if r.TraceDir != "" {
		s += fmt.Sprintf("\nTraces written to %s", r.TraceDir)
	}
	return s
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <network>",
		Short: "Run a demo network and capture its traces",
		Long: fmt.Sprintf(`Run a demo network until it settles.

With a trace directory (--trace-dir or trace.dir in the config file) every
resource writes a durable trace file there. Known networks: %v.

Example:
  fbexec run counter-switch --trace-dir ./traces
  fbexec run producer-consumer --trace-dir ./traces --timeout 10s`, demo.Names()),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetwork(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.TraceDir, "trace-dir", "", "directory for durable trace files (overrides trace.dir)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "maximum time to wait for the network to settle")

	return cmd
}

func runNetwork(cmd *cobra.Command, opts *RunOptions, name string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.TraceDir != "" {
		cfg.Trace.Dir = opts.TraceDir
		cfg.Trace.Backend = trace.BackendDurable
	}
	if cfg.Trace.Dir != "" {
		if err := os.MkdirAll(cfg.Trace.Dir, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create trace directory", err)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sink := trace.NewMemorySink()

	net, err := demo.Build(name, cfg, sink, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build network", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := net.Start(ctx); err != nil {
		_ = net.Close()
		return WrapExitError(ExitFailure, "failed to start network", err)
	}
	settleErr := net.WaitSettled(ctx)
	if err := net.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to close network", err)
	}
	if settleErr != nil {
		logger.Warn("network did not settle", zap.Error(settleErr))
		f := opts.formatter(cmd)
		_ = f.Error(CodeSettle, settleErr.Error(), nil)
		return WrapExitError(ExitFailure, "network did not settle", settleErr)
	}

	result := RunResult{Network: name, TraceDir: cfg.Trace.Dir}
	for _, r := range net.Device.Resources() {
		result.Resources = append(result.Resources, ResourceSummary{
			Name:         r.Name(),
			EventCounter: r.EventCounter(),
			Records:      len(sink.Messages(r.Name())),
		})
	}
	return opts.formatter(cmd).Success(result)
}
