// Package config loads the fbexec configuration file.
//
// The file is YAML. It is first decoded strictly, so unknown keys are
// rejected, and then unified with the embedded CUE schema, which checks
// value ranges and fills in defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fbexec/internal/comlayer"
	"github.com/roach88/fbexec/internal/resource"
	"github.com/roach88/fbexec/internal/timer"
	"github.com/roach88/fbexec/internal/trace"
)

//go:embed schema.cue
var schemaSource string

// Trace configures trace capture.
type Trace struct {
	Dir        string `yaml:"dir" json:"dir"`
	Backend    string `yaml:"backend" json:"backend"`
	PacketSize int    `yaml:"packet_size" json:"packet_size"`
}

// Replay configures deterministic replay.
type Replay struct {
	ValidTypes []string `yaml:"valid_types" json:"valid_types"`
}

// Config is the validated configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	Scheduler string `yaml:"scheduler" json:"scheduler"`
	Timer     string `yaml:"timer" json:"timer"`
	ComLayer  string `yaml:"com_layer" json:"com_layer"`
	Trace     Trace  `yaml:"trace" json:"trace"`
	Replay    Replay `yaml:"replay" json:"replay"`
}

// Default returns the configuration of an empty file.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data and applies defaults.
func Parse(data []byte) (Config, error) {
	var strict Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&strict); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config: schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// TraceOptions returns the recorder options for the configured backend.
// The memory backend needs a sink, which the caller passes.
func (c Config) TraceOptions(sink *trace.MemorySink, logger *zap.Logger) trace.Options {
	return trace.Options{
		Backend:    c.Trace.Backend,
		Dir:        c.Trace.Dir,
		PacketSize: c.Trace.PacketSize,
		Sink:       sink,
		Logger:     logger,
	}
}

// ResourceOptions returns the options every resource is built with.
func (c Config) ResourceOptions(sink *trace.MemorySink, logger *zap.Logger) []resource.Option {
	return []resource.Option{
		resource.WithScheduler(c.Scheduler),
		resource.WithValidTypes(c.Replay.ValidTypes...),
		resource.WithTrace(c.TraceOptions(sink, logger)),
		resource.WithLogger(logger),
	}
}

// NewTimer builds the configured timer handler.
func (c Config) NewTimer(busy func() bool) (timer.Handler, error) {
	return timer.New(c.Timer, timer.Options{Busy: busy})
}

// LayerFactory returns a constructor for the configured com layer on bus.
func (c Config) LayerFactory(bus *comlayer.Bus) func(comlayer.Upper) (comlayer.Layer, error) {
	return func(u comlayer.Upper) (comlayer.Layer, error) {
		return comlayer.New(c.ComLayer, u, bus)
	}
}
