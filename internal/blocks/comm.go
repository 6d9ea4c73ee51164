package blocks

import (
	"github.com/roach88/fbexec/internal/comlayer"
	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/fb"
)

// Shared ports of the communication blocks.
const (
	commINIT engine.PortID = 0
	commREQ  engine.PortID = 1

	commINITO engine.PortID = 0
	commCNF   engine.PortID = 1
	commIND   engine.PortID = 1

	commQI = 0
	commID = 1
	commSD = 2

	commQO     = 0
	commSTATUS = 1
	commRD     = 2
)

// PublishSpec is PUBLISH_1: INIT opens or closes the connection named by
// ID depending on QI, REQ sends SD_1.
var PublishSpec = &fb.Spec{
	TypeName:     "PUBLISH_1",
	EventInputs:  []string{"INIT", "REQ"},
	EventOutputs: []string{"INITO", "CNF"},
	DataInputs: []fb.Var{
		{Name: "QI", Type: fb.Bool},
		{Name: "ID", Type: fb.String},
		{Name: "SD_1", Type: fb.String},
	},
	DataOutputs: []fb.Var{
		{Name: "QO", Type: fb.Bool},
		{Name: "STATUS", Type: fb.String},
	},
	InputWith: map[string][]string{
		"INIT": {"QI", "ID"},
		"REQ":  {"QI", "SD_1"},
	},
	OutputWith: map[string][]string{
		"INITO": {"QO", "STATUS"},
		"CNF":   {"QO", "STATUS"},
	},
}

// NewPublisher creates a PUBLISH_1 instance sending through layer.
func NewPublisher(name string, layer comlayer.Layer) *fb.Block {
	return fb.MustNew(PublishSpec, name, func(b *fb.Block, ev engine.PortID, ctx engine.ExecutionContext) {
		switch ev {
		case commINIT:
			initConnection(b, layer)
			b.SendOutputEvent(commINITO, ctx)
		case commREQ:
			resp := comlayer.Terminated
			if b.Input(commQI).Bool() {
				resp = layer.SendData([]byte(b.Input(commSD).Str()))
			}
			setStatus(b, resp)
			b.SendOutputEvent(commCNF, ctx)
		}
	})
}

func initConnection(b *fb.Block, layer comlayer.Layer) {
	if !b.Input(commQI).Bool() {
		layer.CloseConnection()
		setStatus(b, comlayer.Terminated)
		return
	}
	setStatus(b, layer.OpenConnection(b.Input(commID).Str()))
}

func setStatus(b *fb.Block, resp comlayer.Response) {
	b.SetOutput(commQO, fb.BoolValue(resp.OK()))
	b.SetOutput(commSTATUS, fb.StringValue(resp.String()))
}

// SubscribeSpec is SUBSCRIBE_1. Data received on the connection arrives
// as an external event that sends IND with RD_1.
var SubscribeSpec = &fb.Spec{
	TypeName:     "SUBSCRIBE_1",
	Kind:         engine.KindService,
	EventInputs:  []string{"INIT"},
	EventOutputs: []string{"INITO", "IND"},
	DataInputs: []fb.Var{
		{Name: "QI", Type: fb.Bool},
		{Name: "ID", Type: fb.String},
	},
	DataOutputs: []fb.Var{
		{Name: "QO", Type: fb.Bool},
		{Name: "STATUS", Type: fb.String},
		{Name: "RD_1", Type: fb.String},
	},
	InputWith: map[string][]string{"INIT": {"QI", "ID"}},
	OutputWith: map[string][]string{
		"INITO": {"QO", "STATUS"},
		"IND":   {"QO", "STATUS", "RD_1"},
	},
	Forward: map[string]string{fb.ExternalEvent: "IND"},
}

// Subscriber is a SUBSCRIBE_1 instance together with the layer feeding it.
type Subscriber struct {
	Block   *fb.Block
	starter ChainStarter
	layer   comlayer.Layer
}

var _ comlayer.Upper = (*Subscriber)(nil)

// NewSubscriber creates a SUBSCRIBE_1 instance. newLayer builds its layer
// around the subscriber, which is the layer's Upper.
func NewSubscriber(name string, starter ChainStarter, newLayer func(comlayer.Upper) (comlayer.Layer, error)) (*Subscriber, error) {
	s := &Subscriber{starter: starter}
	layer, err := newLayer(s)
	if err != nil {
		return nil, err
	}
	s.layer = layer
	s.Block = fb.MustNew(SubscribeSpec, name, func(b *fb.Block, ev engine.PortID, ctx engine.ExecutionContext) {
		switch ev {
		case commINIT:
			initConnection(b, s.layer)
			b.SendOutputEvent(commINITO, ctx)
		case fb.ExternalEventPort:
			b.SendOutputEvent(commIND, ctx)
		}
	})
	s.Block.OnExternal(func(engine.PortID) { s.layer.ProcessInterrupt() })
	return s, nil
}

// Interrupt asks the resource for an external event on the subscriber.
func (s *Subscriber) Interrupt() {
	s.starter.StartEventChain(external(s.Block))
}

// Deliver stores received data in the outputs. It runs while the external
// event is latched, before the event is traced.
func (s *Subscriber) Deliver(data []byte) {
	s.Block.SetOutput(commQO, fb.BoolValue(true))
	s.Block.SetOutput(commSTATUS, fb.StringValue(comlayer.DataOK.String()))
	s.Block.SetOutput(commRD, fb.StringValue(string(data)))
}

// Close closes the subscriber's connection.
func (s *Subscriber) Close() {
	s.layer.CloseConnection()
}
