package harness

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fbexec/internal/trace"
)

// Mismatch is one differing record. A missing side is rendered empty.
type Mismatch struct {
	Resource string
	Index    int
	Expected string
	Actual   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s[%d]\n  expected: %s\n  actual:   %s", m.Resource, m.Index, orNone(m.Expected), orNone(m.Actual))
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// MismatchError is returned by Check when traces differ.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "trace mismatch: %d record(s) differ", len(e.Mismatches))
	for _, m := range e.Mismatches {
		buf.WriteString("\n")
		buf.WriteString(m.String())
	}
	return buf.String()
}

// IsMismatch reports whether err is or wraps a *MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// ErrInsensitive is returned by Check when a comparison fails to notice
// an appended record, which would make every other result meaningless.
var ErrInsensitive = errors.New("trace comparison did not detect an extra record")

// Compare lists every record that differs between expected and actual,
// resource by resource in name order. Timestamps are ignored.
func Compare(expected, actual map[string][]trace.EventMessage) []Mismatch {
	names := make(map[string]struct{}, len(expected))
	for n := range expected {
		names[n] = struct{}{}
	}
	for n := range actual {
		names[n] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var out []Mismatch
	for _, n := range sorted {
		out = append(out, compareSequence(n, expected[n], actual[n])...)
	}
	return out
}

func compareSequence(resource string, exp, act []trace.EventMessage) []Mismatch {
	var out []Mismatch
	for i := 0; i < max(len(exp), len(act)); i++ {
		var e, a string
		if i < len(exp) {
			e = exp[i].String()
		}
		if i < len(act) {
			a = act[i].String()
		}
		if i < len(exp) && i < len(act) && exp[i].Equal(act[i]) {
			continue
		}
		out = append(out, Mismatch{Resource: resource, Index: i, Expected: e, Actual: a})
	}
	return out
}

// Check returns nil when expected and actual hold equal traces.
//
// Before comparing, it proves the comparison is sensitive: one extra
// record appended to a copy of actual must be reported.
func Check(expected, actual map[string][]trace.EventMessage) error {
	if err := checkSensitive(expected, actual); err != nil {
		return err
	}
	if ms := Compare(expected, actual); len(ms) > 0 {
		return &MismatchError{Mismatches: ms}
	}
	return nil
}

func checkSensitive(expected, actual map[string][]trace.EventMessage) error {
	extended := make(map[string][]trace.EventMessage, len(actual)+1)
	for n, seq := range actual {
		extended[n] = seq
	}
	name := "<extra>"
	for n := range expected {
		name = n
		break
	}
	extra := trace.NewMessage(trace.ReceiveInputEvent, 0, &trace.EventPayload{
		Source: trace.Source{TypeName: "<extra>", InstanceName: "<extra>"},
	})
	extended[name] = append(append([]trace.EventMessage(nil), extended[name]...), extra)

	if len(Compare(expected, extended)) == 0 {
		return ErrInsensitive
	}
	return nil
}
