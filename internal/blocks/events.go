// Package blocks contains the function block types used by the demo
// networks and tests: restart, counter, switch, delay, publish and
// subscribe.
package blocks

import (
	"math"

	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/fb"
)

// ChainStarter injects external entries into a resource.
type ChainStarter interface {
	StartEventChain(entry engine.EventEntry)
}

// external returns the external entry for b's ExternalEvent input.
func external(b *fb.Block) engine.EventEntry {
	return engine.EventEntry{Unit: b, Port: fb.ExternalEventPort, External: true}
}

// RestartMode selects the restart output fired by E_RESTART.
type RestartMode int

const (
	Cold RestartMode = iota
	Warm
	Stop
)

// RestartSpec is E_RESTART. Its inputs are only reachable as external
// stimuli from the resource.
var RestartSpec = &fb.Spec{
	TypeName:     "E_RESTART",
	Kind:         engine.KindService,
	EventInputs:  []string{"$COLD", "$WARM", "$STOP"},
	EventOutputs: []string{"COLD", "WARM", "STOP"},
}

// NewRestart creates an E_RESTART instance.
func NewRestart(name string) *fb.Block {
	return fb.MustNew(RestartSpec, name, func(b *fb.Block, ev engine.PortID, ctx engine.ExecutionContext) {
		b.SendOutputEvent(ev, ctx)
	})
}

// RestartEntry is the external entry firing mode on a restart block.
func RestartEntry(b *fb.Block, mode RestartMode) engine.EventEntry {
	return engine.EventEntry{Unit: b, Port: engine.PortID(mode), External: true}
}

// E_CTU ports.
const (
	ctuCU engine.PortID = 0
	ctuR  engine.PortID = 1

	ctuCUO engine.PortID = 0
	ctuRO  engine.PortID = 1

	ctuPV = 0
	ctuQ  = 0
	ctuCV = 1
)

// CounterSpec is E_CTU, an up counter: CU increments CV, Q is CV >= PV.
var CounterSpec = &fb.Spec{
	TypeName:     "E_CTU",
	EventInputs:  []string{"CU", "R"},
	EventOutputs: []string{"CUO", "RO"},
	DataInputs:   []fb.Var{{Name: "PV", Type: fb.UInt}},
	DataOutputs:  []fb.Var{{Name: "Q", Type: fb.Bool}, {Name: "CV", Type: fb.UInt}},
	InputWith:    map[string][]string{"CU": {"PV"}},
	OutputWith:   map[string][]string{"CUO": {"Q", "CV"}, "RO": {"Q", "CV"}},
}

// NewCounter creates an E_CTU instance.
func NewCounter(name string) *fb.Block {
	return fb.MustNew(CounterSpec, name, func(b *fb.Block, ev engine.PortID, ctx engine.ExecutionContext) {
		switch ev {
		case ctuCU:
			cv := b.Output(ctuCV).UInt()
			if cv < math.MaxUint64 {
				cv++
			}
			b.SetOutput(ctuCV, fb.UIntValue(cv))
			b.SetOutput(ctuQ, fb.BoolValue(cv >= b.Input(ctuPV).UInt()))
			b.SendOutputEvent(ctuCUO, ctx)
		case ctuR:
			b.SetOutput(ctuCV, fb.UIntValue(0))
			b.SetOutput(ctuQ, fb.BoolValue(false))
			b.SendOutputEvent(ctuRO, ctx)
		}
	})
}

// SwitchSpec is E_SWITCH: EI is routed to EO1 when G is TRUE, else EO0.
var SwitchSpec = &fb.Spec{
	TypeName:     "E_SWITCH",
	EventInputs:  []string{"EI"},
	EventOutputs: []string{"EO0", "EO1"},
	DataInputs:   []fb.Var{{Name: "G", Type: fb.Bool}},
	InputWith:    map[string][]string{"EI": {"G"}},
}

// NewSwitch creates an E_SWITCH instance.
func NewSwitch(name string) *fb.Block {
	return fb.MustNew(SwitchSpec, name, func(b *fb.Block, _ engine.PortID, ctx engine.ExecutionContext) {
		if b.Input(0).Bool() {
			b.SendOutputEvent(1, ctx)
			return
		}
		b.SendOutputEvent(0, ctx)
	})
}
