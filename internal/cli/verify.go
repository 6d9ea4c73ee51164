package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fbexec/internal/harness"
)

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Scenario  string `json:"scenario"`
	Resources int    `json:"resources"`
	Records   int    `json:"records"`
}

func (r VerifyResult) String() string {
	return fmt.Sprintf("✓ %s: %d records across %d resource(s) match", r.Scenario, r.Records, r.Resources)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <scenario.yaml> <trace-dir>",
		Short: "Compare captured traces against a scenario",
		Long: `Decode the traces in trace-dir and require them to equal the records
pinned by the scenario file. Timestamps are not compared.

Exits 1 when the traces differ.

Example:
  fbexec verify testdata/scenarios/counter_switch.yaml ./traces`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyScenario(cmd, rootOpts, args[0], args[1])
		},
	}
	return cmd
}

func verifyScenario(cmd *cobra.Command, opts *RootOptions, scenarioPath, dir string) error {
	s, err := harness.LoadScenario(scenarioPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	traces, err := readTraces(dir)
	if err != nil {
		return err
	}

	f := opts.formatter(cmd)
	f.VerboseLog("Verifying %d resource(s) against %s", len(traces), s.Name)
	if err := s.Verify(traces); err != nil {
		var me *harness.MismatchError
		if errors.As(err, &me) {
			_ = f.Error(CodeMismatch, me.Error(), nil)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s failed", s.Name), err)
	}

	result := VerifyResult{Scenario: s.Name, Resources: len(s.Resources)}
	for _, r := range s.Resources {
		result.Records += len(r.Messages)
	}
	return f.Success(result)
}
