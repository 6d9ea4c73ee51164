package fb

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/trace"
)

// ExternalEvent names the event input through which event sources receive
// external stimuli.
const ExternalEvent = "$EXTERNAL"

// ExternalEventPort is the port id of ExternalEvent.
const ExternalEventPort engine.PortID = 254

// Var declares a data port or internal variable.
type Var struct {
	Name    string
	Type    ValueType
	Initial string
}

// Spec is the interface of a unit type.
type Spec struct {
	TypeName string
	Kind     engine.UnitKind

	EventInputs  []string
	EventOutputs []string
	DataInputs   []Var
	DataOutputs  []Var
	Internals    []Var

	// InputWith maps an event input to the data inputs refreshed with it.
	InputWith map[string][]string
	// OutputWith maps an event output to the data outputs sent with it.
	OutputWith map[string][]string

	// Forward maps an input event to the output event an absorbed unit
	// emits in place of running its algorithm.
	Forward map[string]string
}

// hasState reports whether instances carry data worth a snapshot. Service
// units without data ports or internals trace only their events.
func (s *Spec) hasState() bool {
	return s.Kind != engine.KindService ||
		len(s.DataInputs)+len(s.DataOutputs)+len(s.Internals) > 0
}

// Algorithm runs a unit for one input event after its inputs were read.
type Algorithm func(b *Block, event engine.PortID, ctx engine.ExecutionContext)

type dataSource struct {
	block *Block
	port  int
}

// Block is a unit instance built from a Spec.
type Block struct {
	spec      *Spec
	name      string
	algorithm Algorithm

	mu        sync.Mutex
	inputs    []Value
	outputs   []Value
	internals []Value

	eventConns [][]engine.EventEntry
	dataConns  []*dataSource

	inWith  map[engine.PortID][]int
	outWith [][]int
	forward map[engine.PortID]int

	latch func(engine.PortID)
}

var (
	_ engine.Unit           = (*Block)(nil)
	_ engine.ExternalSource = (*Block)(nil)
)

// New instantiates spec under name. A nil algorithm does nothing.
func New(spec *Spec, name string, algorithm Algorithm) (*Block, error) {
	if algorithm == nil {
		algorithm = func(*Block, engine.PortID, engine.ExecutionContext) {}
	}
	b := &Block{
		spec:       spec,
		name:       name,
		algorithm:  algorithm,
		eventConns: make([][]engine.EventEntry, len(spec.EventOutputs)),
		dataConns:  make([]*dataSource, len(spec.DataInputs)),
		inWith:     make(map[engine.PortID][]int),
		outWith:    make([][]int, len(spec.EventOutputs)),
		forward:    make(map[engine.PortID]int),
	}

	var err error
	if b.inputs, err = initValues(spec.DataInputs); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if b.outputs, err = initValues(spec.DataOutputs); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if b.internals, err = initValues(spec.Internals); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	for ev, vars := range spec.InputWith {
		port, err := b.EventInput(ev)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			idx, err := indexOfVar(spec.DataInputs, v)
			if err != nil {
				return nil, fmt.Errorf("%s: with %s: %w", name, ev, err)
			}
			b.inWith[port] = append(b.inWith[port], idx)
		}
		slices.Sort(b.inWith[port])
	}
	for ev, vars := range spec.OutputWith {
		port, err := b.EventOutput(ev)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			idx, err := indexOfVar(spec.DataOutputs, v)
			if err != nil {
				return nil, fmt.Errorf("%s: with %s: %w", name, ev, err)
			}
			b.outWith[port] = append(b.outWith[port], idx)
		}
		slices.Sort(b.outWith[port])
	}
	for in, out := range spec.Forward {
		inPort, err := b.EventInput(in)
		if err != nil {
			return nil, err
		}
		outPort, err := b.EventOutput(out)
		if err != nil {
			return nil, err
		}
		b.forward[inPort] = int(outPort)
	}
	return b, nil
}

// MustNew is New for statically known specs.
func MustNew(spec *Spec, name string, algorithm Algorithm) *Block {
	b, err := New(spec, name, algorithm)
	if err != nil {
		panic(err)
	}
	return b
}

func initValues(vars []Var) ([]Value, error) {
	out := make([]Value, len(vars))
	for i, v := range vars {
		if v.Initial == "" {
			out[i] = Zero(v.Type)
			continue
		}
		val, err := ParseValue(v.Type, v.Initial)
		if err != nil {
			return nil, fmt.Errorf("initial value of %s: %w", v.Name, err)
		}
		out[i] = val
	}
	return out, nil
}

func indexOfVar(vars []Var, name string) (int, error) {
	for i, v := range vars {
		if v.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown variable %q", name)
}

func (b *Block) TypeName() string      { return b.spec.TypeName }
func (b *Block) InstanceName() string  { return b.name }
func (b *Block) Kind() engine.UnitKind { return b.spec.Kind }
func (b *Block) Spec() *Spec           { return b.spec }
func (b *Block) source() trace.Source  { return engine.SourceOf(b) }
func (b *Block) Entry(port engine.PortID) engine.EventEntry {
	return engine.EventEntry{Unit: b, Port: port}
}

// EventInput resolves an event input name to its port.
func (b *Block) EventInput(name string) (engine.PortID, error) {
	if name == ExternalEvent {
		return ExternalEventPort, nil
	}
	if i := slices.Index(b.spec.EventInputs, name); i >= 0 {
		return engine.PortID(i), nil
	}
	return 0, fmt.Errorf("%s: unknown event input %q", b.name, name)
}

// EventOutput resolves an event output name to its port.
func (b *Block) EventOutput(name string) (engine.PortID, error) {
	if i := slices.Index(b.spec.EventOutputs, name); i >= 0 {
		return engine.PortID(i), nil
	}
	return 0, fmt.Errorf("%s: unknown event output %q", b.name, name)
}

// ConnectEvent delivers the output event out to dst's input event in.
func (b *Block) ConnectEvent(out string, dst *Block, in string) error {
	op, err := b.EventOutput(out)
	if err != nil {
		return err
	}
	ip, err := dst.EventInput(in)
	if err != nil {
		return err
	}
	b.eventConns[op] = append(b.eventConns[op], dst.Entry(ip))
	return nil
}

// ConnectData makes dst's data input in read b's data output out.
func (b *Block) ConnectData(out string, dst *Block, in string) error {
	op, err := indexOfVar(b.spec.DataOutputs, out)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	ip, err := indexOfVar(dst.spec.DataInputs, in)
	if err != nil {
		return fmt.Errorf("%s: %w", dst.name, err)
	}
	if dst.dataConns[ip] != nil {
		return fmt.Errorf("%s.%s already connected", dst.name, in)
	}
	dst.dataConns[ip] = &dataSource{block: b, port: op}
	return nil
}

// SetInput assigns a parameter to an unconnected data input.
func (b *Block) SetInput(name, value string) error {
	idx, err := indexOfVar(b.spec.DataInputs, name)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	v, err := ParseValue(b.spec.DataInputs[idx].Type, value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", b.name, name, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[idx] = v
	return nil
}

func (b *Block) Input(i int) Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs[i]
}

func (b *Block) Output(i int) Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[i]
}

func (b *Block) SetOutput(i int, v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[i] = v
}

func (b *Block) Internal(i int) Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.internals[i]
}

func (b *Block) SetInternal(i int, v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.internals[i] = v
}

// InputValues returns the data inputs in trace form.
func (b *Block) InputValues() []string { return b.render(b.inputs) }

// OutputValues returns the data outputs in trace form.
func (b *Block) OutputValues() []string { return b.render(b.outputs) }

// InternalValues returns the internal variables in trace form.
func (b *Block) InternalValues() []string { return b.render(b.internals) }

func (b *Block) render(vals []Value) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

// ForceOutputs overwrites every data output from its trace form.
func (b *Block) ForceOutputs(values []string) error {
	if len(values) != len(b.spec.DataOutputs) {
		return fmt.Errorf("%s: %d output values for %d outputs", b.name, len(values), len(b.spec.DataOutputs))
	}
	parsed := make([]Value, len(values))
	for i, s := range values {
		v, err := ParseValue(b.spec.DataOutputs[i].Type, s)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", b.name, b.spec.DataOutputs[i].Name, err)
		}
		parsed[i] = v
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.outputs, parsed)
	return nil
}

// OnExternal installs fn to run right before an external entry for this
// block is traced and dispatched. Event sources use it to move received
// data into their outputs so that the traced outputs are the new ones.
func (b *Block) OnExternal(fn func(engine.PortID)) {
	b.latch = fn
}

// LatchExternal runs the OnExternal hook, if any.
func (b *Block) LatchExternal(port engine.PortID) {
	if b.latch != nil {
		b.latch(port)
	}
}

// ReceiveInputEvent traces the event and a snapshot, refreshes the
// connected data inputs of the event and then runs the algorithm. Service
// units without data skip the snapshot.
//
// When the resource absorbs the block's type and the event has a Forward
// entry, the algorithm is skipped and the forwarded output event is sent
// with the current outputs instead.
func (b *Block) ReceiveInputEvent(port engine.PortID, ctx engine.ExecutionContext) {
	rec := ctx.Recorder()
	if rec.Enabled() {
		src := b.source()
		rec.RecordInputEvent(src, uint64(port))
		if b.spec.hasState() {
			rec.RecordInstanceSnapshot(src, b.InputValues(), b.OutputValues(), b.InternalValues(), nil)
		}
	}
	b.readInputs(port, rec)

	if ctx.Absorbs(b.spec.TypeName) {
		if out, ok := b.forward[port]; ok {
			b.SendOutputEvent(engine.PortID(out), ctx)
			return
		}
	}
	b.algorithm(b, port, ctx)
}

func (b *Block) readInputs(port engine.PortID, rec trace.Recorder) {
	for _, idx := range b.inWith[port] {
		conn := b.dataConns[idx]
		if conn == nil {
			continue
		}
		v := conn.block.Output(conn.port)
		if want := b.spec.DataInputs[idx].Type; v.Type() != want {
			if converted, err := ParseValue(want, v.String()); err == nil {
				v = converted
			}
		}
		b.mu.Lock()
		b.inputs[idx] = v
		b.mu.Unlock()
		if rec.Enabled() {
			rec.RecordInputData(b.source(), uint64(idx), v.String())
		}
	}
}

// SendOutputEvent traces the output event and its associated data, then
// queues the event for every connected destination.
func (b *Block) SendOutputEvent(port engine.PortID, ctx engine.ExecutionContext) {
	rec := ctx.Recorder()
	if rec.Enabled() {
		src := b.source()
		rec.RecordOutputEvent(src, uint64(port))
		for _, idx := range b.outWith[port] {
			rec.RecordOutputData(src, uint64(idx), b.Output(idx).String())
		}
	}
	for _, dst := range b.eventConns[port] {
		ctx.AddEventEntry(dst)
	}
}
