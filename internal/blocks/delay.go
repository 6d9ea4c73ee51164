package blocks

import (
	"sync"
	"time"

	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/fb"
	"github.com/roach88/fbexec/internal/timer"
)

// DelaySpec is E_DELAY. START arms the timer for DT milliseconds; when it
// expires the resource receives an external event and EO is sent. STOP
// disarms it.
var DelaySpec = &fb.Spec{
	TypeName:     "E_DELAY",
	Kind:         engine.KindService,
	EventInputs:  []string{"START", "STOP"},
	EventOutputs: []string{"EO"},
	DataInputs:   []fb.Var{{Name: "DT", Type: fb.UInt}},
	InputWith:    map[string][]string{"START": {"DT"}},
	Forward:      map[string]string{fb.ExternalEvent: "EO"},
}

const (
	delayStart engine.PortID = 0
	delayStop  engine.PortID = 1
)

type delay struct {
	handler timer.Handler
	starter ChainStarter

	mu     sync.Mutex
	cancel func()
}

// NewDelay creates an E_DELAY instance scheduling on h and firing into
// starter.
func NewDelay(name string, h timer.Handler, starter ChainStarter) *fb.Block {
	d := &delay{handler: h, starter: starter}
	return fb.MustNew(DelaySpec, name, d.run)
}

func (d *delay) run(b *fb.Block, ev engine.PortID, ctx engine.ExecutionContext) {
	switch ev {
	case delayStart:
		dt := time.Duration(b.Input(0).UInt()) * time.Millisecond
		if dt <= 0 {
			d.starter.StartEventChain(external(b))
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.cancel != nil {
			return
		}
		d.cancel = d.handler.After(dt, func() {
			d.mu.Lock()
			d.cancel = nil
			d.mu.Unlock()
			d.starter.StartEventChain(external(b))
		})
	case delayStop:
		d.mu.Lock()
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
		d.mu.Unlock()
	case fb.ExternalEventPort:
		b.SendOutputEvent(0, ctx)
	}
}
