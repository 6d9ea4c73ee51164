package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/fbexec/internal/trace"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	ExternalOnly bool
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <trace-dir|trace-file>",
		Short: "Print decoded trace records",
		Long: `Decode durable trace files and print their records in capture order.

Text output prints one rendered record per line, prefixed with its
timestamp. JSON output groups flat records by resource.

Example:
  fbexec decode ./traces
  fbexec decode --external --format json ./traces/trace_RES_20240102_030405000.fbt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeTraces(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.ExternalOnly, "external", false, "print only externalEventInput records")

	return cmd
}

func decodeTraces(cmd *cobra.Command, opts *DecodeOptions, path string) error {
	traces, err := readTraces(path)
	if err != nil {
		return err
	}
	if opts.ExternalOnly {
		traces = trace.ExternalEvents(traces)
	}

	f := opts.formatter(cmd)
	if f.JSON() {
		out := make(map[string][]trace.Record, len(traces))
		for name, msgs := range traces {
			recs := make([]trace.Record, 0, len(msgs))
			for _, m := range msgs {
				recs = append(recs, trace.ToRecord(m))
			}
			out[name] = recs
		}
		return f.Success(out)
	}
	writeTraces(cmd.OutOrStdout(), traces)
	return nil
}

// readTraces decodes a trace directory, or a single trace file.
func readTraces(path string) (map[string][]trace.EventMessage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read traces", err)
	}

	var traces map[string][]trace.EventMessage
	if info.IsDir() {
		traces, err = trace.DecodeDir(path)
	} else {
		traces, err = decodeFile(path)
	}
	if err != nil {
		code := ExitCommandError
		if trace.IsDecodeError(err) {
			code = ExitFailure
		}
		return nil, WrapExitError(code, "failed to decode traces", err)
	}
	if len(traces) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no trace files in %s", path))
	}
	return traces, nil
}

func decodeFile(path string) (map[string][]trace.EventMessage, error) {
	resource, err := trace.ResourceFromFileName(path)
	if err != nil {
		return nil, err
	}
	msgs, err := trace.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return map[string][]trace.EventMessage{resource: msgs}, nil
}

func writeTraces(w io.Writer, traces map[string][]trace.EventMessage) {
	names := make([]string, 0, len(traces))
	for n := range traces {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "# %s (%d records)\n", n, len(traces[n]))
		for _, m := range traces[n] {
			fmt.Fprintf(w, "%s %s\n", m.TimestampString(), m.String())
		}
	}
}
