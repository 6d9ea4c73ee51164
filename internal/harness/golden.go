package harness

import (
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fbexec/internal/trace"
)

// Render writes one rendered message per line. Timestamps are left out so
// that renders of equal traces are byte-identical.
func Render(msgs []trace.EventMessage) string {
	var buf strings.Builder
	for _, m := range msgs {
		buf.WriteString(m.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}

// RenderAll renders every resource's trace under a "# <resource>" header,
// resources in name order.
func RenderAll(traces map[string][]trace.EventMessage) string {
	var buf strings.Builder
	for _, name := range sortedNames(traces) {
		buf.WriteString("# " + name + "\n")
		buf.WriteString(Render(traces[name]))
	}
	return buf.String()
}

func sortedNames(traces map[string][]trace.EventMessage) []string {
	names := make([]string, 0, len(traces))
	for n := range traces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AssertGolden compares the rendered msgs against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, msgs []trace.EventMessage) {
	t.Helper()
	assertGolden(t, name, Render(msgs))
}

// AssertGoldenAll is AssertGolden for a multi-resource trace.
func AssertGoldenAll(t *testing.T, name string, traces map[string][]trace.EventMessage) {
	t.Helper()
	assertGolden(t, name, RenderAll(traces))
}

func assertGolden(t *testing.T, name, rendered string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(rendered))
}
