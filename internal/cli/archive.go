package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fbexec/internal/store"
	"github.com/roach88/fbexec/internal/trace"
)

// ArchiveOptions holds flags shared by the import and show commands.
type ArchiveOptions struct {
	*RootOptions
	Database string
}

func (o *ArchiveOptions) open() (*store.Store, error) {
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// ImportedTrace describes one imported file.
type ImportedTrace struct {
	ID       int64  `json:"id"`
	Resource string `json:"resource"`
	File     string `json:"file"`
	Records  int    `json:"records"`
}

// ImportResult is the output of the import command.
type ImportResult struct {
	Database string          `json:"database"`
	Traces   []ImportedTrace `json:"traces"`
}

func (r ImportResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d trace(s) into %s", len(r.Traces), r.Database)
	for _, t := range r.Traces {
		fmt.Fprintf(&b, "\n  #%d %s: %d records (%s)", t.ID, t.Resource, t.Records, t.File)
	}
	return b.String()
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <trace-dir>",
		Short: "Archive decoded traces in a SQLite database",
		Long: `Decode every trace file in trace-dir and store its records in the
archive database, creating it if needed. Importing the same file again
replaces the earlier import.

Example:
  fbexec import --db ./traces.db ./traces`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importTraces(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func importTraces(cmd *cobra.Command, opts *ArchiveOptions, dir string) error {
	paths, err := trace.ListFiles(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read traces", err)
	}
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no trace files in %s", dir))
	}

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	result := ImportResult{Database: opts.Database}
	for _, path := range paths {
		resource, err := trace.ResourceFromFileName(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to import traces", err)
		}
		msgs, err := trace.DecodeFile(path)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to decode traces", err)
		}
		name := filepath.Base(path)
		id, err := st.ImportTrace(cmd.Context(), resource, name, msgs)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to import traces", err)
		}
		f.VerboseLog("imported %s as trace %d", name, id)
		result.Traces = append(result.Traces, ImportedTrace{ID: id, Resource: resource, File: name, Records: len(msgs)})
	}
	return f.Success(result)
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	ArchiveOptions
	ExternalOnly bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{ArchiveOptions: ArchiveOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "show [resource]",
		Short: "List archived traces or print one",
		Long: `Without arguments, list the traces in the archive database. With a
resource name, print the records of its most recent import.

Example:
  fbexec show --db ./traces.db
  fbexec show --db ./traces.db --external PRODUCER`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listArchived(cmd, opts)
			}
			return showArchived(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.ExternalOnly, "external", false, "print only externalEventInput records")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// archivedTraces renders a trace listing as text.
type archivedTraces []store.TraceInfo

func (ts archivedTraces) String() string {
	if len(ts) == 0 {
		return "No traces archived."
	}
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "#%d %s: %d records (%s)", t.ID, t.Resource, t.MessageCount, t.SourceFile)
	}
	return b.String()
}

func listArchived(cmd *cobra.Command, opts *ShowOptions) error {
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	traces, err := st.Traces(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list traces", err)
	}
	f := opts.formatter(cmd)
	if f.JSON() {
		if traces == nil {
			traces = []store.TraceInfo{}
		}
		return f.Success(traces)
	}
	return f.Success(archivedTraces(traces))
}

func showArchived(cmd *cobra.Command, opts *ShowOptions, resource string) error {
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	info, err := st.LatestTrace(ctx, resource)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find trace", err)
	}
	var msgs []trace.EventMessage
	if opts.ExternalOnly {
		msgs, err = st.ReadExternalEvents(ctx, info.ID)
	} else {
		msgs, err = st.ReadMessages(ctx, info.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	traces := map[string][]trace.EventMessage{resource: msgs}
	f := opts.formatter(cmd)
	if f.JSON() {
		recs := make([]trace.Record, 0, len(msgs))
		for _, m := range msgs {
			recs = append(recs, trace.ToRecord(m))
		}
		return f.Success(map[string][]trace.Record{resource: recs})
	}
	writeTraces(cmd.OutOrStdout(), traces)
	return nil
}
