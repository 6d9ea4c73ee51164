package comlayer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUpper struct {
	interrupts int
	delivered  []string
}

func (u *recordingUpper) Interrupt()          { u.interrupts++ }
func (u *recordingUpper) Deliver(data []byte) { u.delivered = append(u.delivered, string(data)) }

func TestLoopbackDeliversInOrder(t *testing.T) {
	bus := NewBus()
	up := &recordingUpper{}
	sub, err := New(NameLoopback, up, bus)
	require.NoError(t, err)
	pub, err := New(NameLoopback, nil, bus)
	require.NoError(t, err)

	require.Equal(t, InitOK, sub.OpenConnection("topic"))
	require.Equal(t, InitOK, pub.OpenConnection("topic"))

	assert.Equal(t, SendOK, pub.SendData([]byte("a")))
	assert.Equal(t, SendOK, pub.SendData([]byte("b")))
	assert.Equal(t, 2, up.interrupts)
	assert.Empty(t, up.delivered, "nothing delivered before the interrupt is processed")

	assert.Equal(t, DataOK, sub.ProcessInterrupt())
	assert.Equal(t, DataOK, sub.ProcessInterrupt())
	assert.Equal(t, NoData, sub.ProcessInterrupt())
	assert.Equal(t, []string{"a", "b"}, up.delivered)
}

func TestLoopbackClosedLayers(t *testing.T) {
	bus := NewBus()
	up := &recordingUpper{}
	sub := NewLoopback(bus, up)
	pub := NewLoopback(bus, nil)

	assert.Equal(t, Terminated, pub.SendData([]byte("x")), "send before open")

	sub.OpenConnection("t")
	pub.OpenConnection("t")
	sub.CloseConnection()
	pub.SendData([]byte("x"))
	assert.Zero(t, up.interrupts)

	assert.Equal(t, Terminated, pub.RecvData([]byte("x")), "send-only layer")
}

func TestLoopbackIsolatesIDs(t *testing.T) {
	bus := NewBus()
	up := &recordingUpper{}
	sub := NewLoopback(bus, up)
	sub.OpenConnection("a")

	pub := NewLoopback(bus, nil)
	pub.OpenConnection("b")
	pub.SendData([]byte("x"))
	assert.Zero(t, up.interrupts)
}

func TestManualLayer(t *testing.T) {
	l, err := New(NameManual, nil, nil)
	require.NoError(t, err)
	assert.True(t, l.OpenConnection("x").OK())
	assert.True(t, l.SendData(nil).OK())
	assert.True(t, l.ProcessInterrupt().OK())
	l.CloseConnection()
}

func TestFactoryErrors(t *testing.T) {
	_, err := New(NameLoopback, nil, nil)
	assert.Error(t, err)
	_, err = New("mqtt", nil, NewBus())
	assert.Error(t, err)
	assert.Equal(t, "NODATA", NoData.String())
}
