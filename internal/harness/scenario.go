package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fbexec/internal/trace"
)

// Scenario pins the expected traces of a network run.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Network names the demo network the scenario runs against. It is
	// informational for callers that verify traces they captured
	// themselves.
	Network string `yaml:"network,omitempty"`

	// Resources lists the expected trace of each resource.
	Resources []ScenarioResource `yaml:"resources"`
}

// ScenarioResource is the expected trace of one resource.
type ScenarioResource struct {
	Name     string         `yaml:"name"`
	Messages []trace.Record `yaml:"messages"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Resources) == 0 {
		return fmt.Errorf("resources list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, r := range s.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource %q", i, r.Name)
		}
		seen[r.Name] = true
		for j, rec := range r.Messages {
			if _, err := rec.Message(); err != nil {
				return fmt.Errorf("resources[%d].messages[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// Expected returns the scenario's traces keyed by resource name.
func (s *Scenario) Expected() map[string][]trace.EventMessage {
	out := make(map[string][]trace.EventMessage, len(s.Resources))
	for _, r := range s.Resources {
		msgs := make([]trace.EventMessage, 0, len(r.Messages))
		for _, rec := range r.Messages {
			// Validated on load.
			m, _ := rec.Message()
			msgs = append(msgs, m)
		}
		out[r.Name] = msgs
	}
	return out
}

// Verify checks actual against the scenario's expected traces.
func (s *Scenario) Verify(actual map[string][]trace.EventMessage) error {
	return Check(s.Expected(), actual)
}

// ScenarioFromTraces builds a scenario pinning traces, for example to
// record a new scenario from a live run.
func ScenarioFromTraces(name, description string, traces map[string][]trace.EventMessage) *Scenario {
	s := &Scenario{Name: name, Description: description}
	for _, res := range sortedNames(traces) {
		sr := ScenarioResource{Name: res}
		for _, m := range traces[res] {
			rec := trace.ToRecord(m)
			rec.Timestamp = 0
			sr.Messages = append(sr.Messages, rec)
		}
		s.Resources = append(s.Resources, sr)
	}
	return s
}

// Marshal encodes the scenario as YAML.
func (s *Scenario) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
