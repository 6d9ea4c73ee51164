// Package comlayer provides the communication layer consumed by
// communication units.
//
// A Layer sits between a unit (its Upper) and a transport. Data arriving
// from the transport is queued by RecvData, which asks the unit for an
// external event; ProcessInterrupt later hands the oldest queued datum to
// the unit on its resource's scheduler goroutine.
package comlayer

import "fmt"

// Response is the result of a layer operation.
type Response int

const (
	InitOK Response = iota + 1
	SendOK
	DataOK
	NoData
	Terminated
	Failed
)

func (r Response) String() string {
	switch r {
	case InitOK:
		return "INITOK"
	case SendOK:
		return "SENDOK"
	case DataOK:
		return "DATAOK"
	case NoData:
		return "NODATA"
	case Terminated:
		return "TERMINATED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("RESPONSE(%d)", int(r))
	}
}

// OK reports whether r is a success response.
func (r Response) OK() bool {
	return r == InitOK || r == SendOK || r == DataOK
}

// Layer is the communication contract a unit consumes.
type Layer interface {
	OpenConnection(params string) Response
	CloseConnection()
	SendData(data []byte) Response
	RecvData(data []byte) Response
	ProcessInterrupt() Response
}

// Upper is the unit side of a receiving layer.
type Upper interface {
	// Interrupt is called from the transport goroutine when data is queued.
	Interrupt()
	// Deliver hands received data to the unit during ProcessInterrupt.
	Deliver(data []byte)
}

// Layer names accepted by New.
const (
	NameManual   = "manual"
	NameLoopback = "loopback"
)

// New builds the named layer. upper may be nil for send-only units. bus is
// required by the loopback layer.
func New(name string, upper Upper, bus *Bus) (Layer, error) {
	switch name {
	case NameManual:
		return Manual{}, nil
	case "", NameLoopback:
		if bus == nil {
			return nil, fmt.Errorf("loopback layer requires a bus")
		}
		return NewLoopback(bus, upper), nil
	default:
		return nil, fmt.Errorf("unknown com layer %q", name)
	}
}

// Manual is the layer used during replay. It accepts every request and
// never produces data: received values are forced by the replay driver.
type Manual struct{}

func (Manual) OpenConnection(string) Response { return InitOK }
func (Manual) CloseConnection()               {}
func (Manual) SendData([]byte) Response       { return SendOK }
func (Manual) RecvData([]byte) Response       { return InitOK }
func (Manual) ProcessInterrupt() Response     { return InitOK }
