package modbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"github.com/KevinKickass/OpenBlenderCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFrame_EncodeDecode(t *testing.T) {
	req := ReadHoldingRegistersRequest(7, 1, 0x0010, 2)
	data := req.Encode()

	assert.Equal(t, []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x10, 0x00, 0x02}, data)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), decoded.TransactionID)
	assert.Equal(t, uint8(FuncCodeReadHoldingRegisters), decoded.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x02}, decoded.Data)
}

func TestFrame_DecodeErrors(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01, 0x00})
	assert.Error(t, err)

	// protocol id must be zero
	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03})
	assert.Error(t, err)

	// length field disagrees with the payload
	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x09, 0x01, 0x03})
	assert.Error(t, err)
}

func TestFrame_WriteSingleCoil(t *testing.T) {
	on := WriteSingleCoilRequest(1, 1, 5, true)
	assert.Equal(t, []byte{0x00, 0x05, 0xFF, 0x00}, on.Data)

	off := WriteSingleCoilRequest(1, 1, 5, false)
	assert.Equal(t, []byte{0x00, 0x05, 0x00, 0x00}, off.Data)
}

func TestFrame_ParseBitResponse(t *testing.T) {
	f := &ModbusFrame{Data: []byte{0x02, 0b1000_0101, 0b0000_0001}}

	bits, err := f.ParseBitResponse(9)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false, false, false, false, true, true}, bits)

	_, err = f.ParseBitResponse(17)
	assert.Error(t, err)
}

func TestFrame_ParseRegisterResponse(t *testing.T) {
	f := &ModbusFrame{Data: []byte{0x04, 0x01, 0x2C, 0xFF, 0xFE}}

	regs, err := f.ParseRegisterResponse()
	require.NoError(t, err)
	assert.Equal(t, []uint16{300, 0xFFFE}, regs)

	f = &ModbusFrame{Data: []byte{0x04, 0x01}}
	_, err = f.ParseRegisterResponse()
	assert.Error(t, err)
}

func TestFrame_Exception(t *testing.T) {
	f := &ModbusFrame{FunctionCode: 0x83, Data: []byte{0x02}}

	var exc *ExceptionError
	require.ErrorAs(t, f.Exception(), &exc)
	assert.Equal(t, uint8(0x03), exc.FunctionCode)
	assert.Equal(t, uint8(0x02), exc.Code)

	assert.NoError(t, (&ModbusFrame{FunctionCode: 0x03}).Exception())
}

func TestClient_RoundTrips(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.holding[10] = 42
		s.input[3] = 380
		s.coils[1] = false
		s.discrete[4] = true
	})

	client := NewClient(srv.address(), time.Second)
	require.NoError(t, client.Connect())
	defer client.Close()
	ctx := context.Background()

	regs, err := client.ReadHoldingRegisters(ctx, 1, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, regs)

	regs, err = client.ReadInputRegisters(ctx, 1, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{380}, regs)

	require.NoError(t, client.WriteSingleRegister(ctx, 1, 10, 7))
	assert.Equal(t, uint16(7), srv.holdingReg(10))

	require.NoError(t, client.WriteSingleCoil(ctx, 1, 1, true))
	assert.True(t, srv.coil(1))

	coils, err := client.ReadCoils(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, coils)

	inputs, err := client.ReadDiscreteInputs(ctx, 1, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, inputs)
}

func TestClient_Exception(t *testing.T) {
	srv := newTestServer(t)

	client := NewClient(srv.address(), time.Second)
	require.NoError(t, client.Connect())
	defer client.Close()

	_, err := client.ReadHoldingRegisters(context.Background(), 1, 99, 1)
	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, uint8(0x02), exc.Code)

	// an exception keeps the connection usable
	assert.True(t, client.IsConnected())
}

func TestClient_NotConnected(t *testing.T) {
	client := NewClient("127.0.0.1:1", 100*time.Millisecond)
	_, err := client.ReadCoils(context.Background(), 1, 0, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

// blenderProfile maps every signal onto the test server's address space.
func blenderProfile() *types.IOProfile {
	p := &types.IOProfile{
		Profile:  types.ProfileInfo{ID: "test-io"},
		Bindings: map[string]string{},
	}
	add := func(logical string, reg types.RegisterDefinition) {
		reg.Name = "reg_" + logical
		p.Registers = append(p.Registers, reg)
		p.Bindings[logical] = reg.Name
	}

	add(BindingMotorUp, types.RegisterDefinition{Address: 0, Type: types.RegisterTypeCoil, DataType: types.DataTypeBool, Access: types.AccessTypeReadWrite})
	add(BindingMotorDown, types.RegisterDefinition{Address: 1, Type: types.RegisterTypeCoil, DataType: types.DataTypeBool, Access: types.AccessTypeReadWrite})
	add(BindingMotorSpeed, types.RegisterDefinition{Address: 0, Type: types.RegisterTypeHoldingRegister, DataType: types.DataTypeUint16, Access: types.AccessTypeReadWrite})
	add(BindingPosition, types.RegisterDefinition{Address: 0, Type: types.RegisterTypeInputRegister, DataType: types.DataTypeUint16, Access: types.AccessTypeReadOnly})
	add(BindingCupDistance, types.RegisterDefinition{Address: 1, Type: types.RegisterTypeInputRegister, DataType: types.DataTypeUint16, Access: types.AccessTypeReadOnly})
	for i, addr := range action.AllOutputs() {
		add(OutputBinding(addr), types.RegisterDefinition{Address: uint16(2 + i), Type: types.RegisterTypeCoil, DataType: types.DataTypeBool, Access: types.AccessTypeReadWrite})
	}
	for _, id := range hal.AllButtons() {
		add(ButtonBinding(id), types.RegisterDefinition{Address: uint16(id), Type: types.RegisterTypeDiscreteInput, DataType: types.DataTypeBool, Access: types.AccessTypeReadOnly})
	}
	return p
}

func seed(srv *testServer) {
	for a := uint16(0); a < 7; a++ {
		srv.coils[a] = false
	}
	for _, id := range hal.AllButtons() {
		srv.discrete[uint16(id)] = false
	}
	srv.holding[0] = 0
	srv.input[0] = 40
	srv.input[1] = 25
}

func newTestIO(t *testing.T) (*testServer, *Device, *Poller, *IO) {
	t.Helper()

	srv := newTestServer(t, seed)

	host, port := srv.addr()
	device, err := NewDevice("blender-io", host, port, 1, blenderProfile(), time.Second)
	require.NoError(t, err)
	require.NoError(t, device.Connect())
	t.Cleanup(func() { device.Disconnect() })

	bio, err := NewIO(device, zap.NewNop())
	require.NoError(t, err)

	return srv, device, NewPoller(device, 10*time.Millisecond, zap.NewNop()), bio
}

func TestIO_ReadsComeFromPolledCache(t *testing.T) {
	srv, _, poller, bio := newTestIO(t)

	assert.Equal(t, action.Position(0), bio.ReadPosition())

	poller.PollOnce()
	assert.Equal(t, action.Position(40), bio.ReadPosition())
	assert.Equal(t, int32(25), bio.Ping())
	assert.False(t, bio.Input(hal.BlendButton).Raw())

	srv.setInput(0, 300)
	srv.setDiscrete(uint16(hal.BlendButton), true)
	assert.Equal(t, action.Position(40), bio.ReadPosition())

	poller.PollOnce()
	assert.Equal(t, action.Position(300), bio.ReadPosition())
	assert.True(t, bio.Input(hal.BlendButton).Raw())
}

func TestIO_KeepsLastGoodReading(t *testing.T) {
	_, device, poller, _ := newTestIO(t)

	core, logs := observer.New(zapcore.InfoLevel)
	bio, err := NewIO(device, zap.New(core))
	require.NoError(t, err)

	// nothing polled yet
	assert.Equal(t, action.Position(0), bio.ReadPosition())
	assert.Equal(t, action.Position(0), bio.ReadPosition())
	assert.Equal(t, 1, logs.FilterMessage("No cached value, using last good reading").
		FilterField(zap.String("signal", BindingPosition)).Len())

	poller.PollOnce()
	assert.Equal(t, action.Position(40), bio.ReadPosition())
	assert.Equal(t, int32(25), bio.Ping())
	assert.Equal(t, 1, logs.FilterMessage("Cached value available again").Len())

	device.mu.Lock()
	delete(device.lastValues, device.Profile.Bindings[BindingPosition])
	delete(device.lastValues, device.Profile.Bindings[BindingCupDistance])
	device.mu.Unlock()

	assert.Equal(t, action.Position(40), bio.ReadPosition())
	assert.Equal(t, action.Position(40), bio.ReadPosition())
	assert.Equal(t, int32(25), bio.Ping())
	assert.Equal(t, 2, logs.FilterMessage("No cached value, using last good reading").
		FilterField(zap.String("signal", BindingPosition)).Len())
	assert.Equal(t, 1, logs.FilterMessage("No cached value, using last good reading").
		FilterField(zap.String("signal", BindingCupDistance)).Len())
}

func TestIO_WritesAreQueuedUntilPoll(t *testing.T) {
	srv, device, poller, bio := newTestIO(t)
	poller.PollOnce()
	before := srv.requestCount()

	bio.Drive(action.DirectionDown, action.SpeedHalf)
	bio.WriteLevel(action.OutputPump, hal.High)

	// nothing went over the wire yet, but the cache already reflects it
	assert.Equal(t, before, srv.requestCount())
	assert.Equal(t, hal.High, bio.ReadLevel(action.OutputPump))
	assert.Equal(t, 4, device.PendingWrites())

	poller.PollOnce()
	assert.Equal(t, 0, device.PendingWrites())
	assert.False(t, srv.coil(0))
	assert.True(t, srv.coil(1))
	assert.Equal(t, uint16(50), srv.holdingReg(0))
	assert.True(t, srv.coil(2))
	assert.Equal(t, hal.High, bio.ReadLevel(action.OutputPump))

	bio.Drive(action.DirectionIdle, action.SpeedFull)
	poller.PollOnce()
	assert.False(t, srv.coil(1))
	assert.Equal(t, uint16(0), srv.holdingReg(0))
}

func TestIO_MissingBindings(t *testing.T) {
	profile := blenderProfile()
	delete(profile.Bindings, BindingCupDistance)
	delete(profile.Bindings, ButtonBinding(hal.StopButton))

	device, err := NewDevice("blender-io", "127.0.0.1", 502, 1, profile, time.Second)
	require.NoError(t, err)

	_, err = NewIO(device, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), BindingCupDistance)
	assert.Contains(t, err.Error(), "button_stop")
}

func TestDevice_UnknownBindingRegister(t *testing.T) {
	profile := blenderProfile()
	profile.Bindings[BindingPosition] = "nope"

	_, err := NewDevice("blender-io", "127.0.0.1", 502, 1, profile, time.Second)
	assert.Error(t, err)
}

func TestDevice_ReadOnlyRejectsWrites(t *testing.T) {
	device, err := NewDevice("blender-io", "127.0.0.1", 502, 1, blenderProfile(), time.Second)
	require.NoError(t, err)

	err = device.QueueWrite("reg_"+BindingPosition, uint16(1))
	assert.Error(t, err)
}

func TestPoller_ReportsFailureOnce(t *testing.T) {
	_, device, poller, _ := newTestIO(t)

	var reported []string
	poller.OnError(func(name string, err error) {
		reported = append(reported, fmt.Sprintf("%s: %v", name, err))
	})

	// unknown address on the server makes every cycle fail
	device.Profile.Registers = append(device.Profile.Registers, types.RegisterDefinition{
		Name: "ghost", Address: 900, Type: types.RegisterTypeInputRegister, DataType: types.DataTypeUint16, Access: types.AccessTypeReadOnly,
	})
	device.RegisterMap["ghost"] = &device.Profile.Registers[len(device.Profile.Registers)-1]

	poller.PollOnce()
	poller.PollOnce()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0], "blender-io")
}

func TestPoller_StartStop(t *testing.T) {
	srv, _, poller, bio := newTestIO(t)
	srv.setInput(0, 123)

	require.NoError(t, poller.Start())
	assert.True(t, poller.IsRunning())
	assert.Eventually(t, func() bool { return bio.ReadPosition() == 123 }, 2*time.Second, 5*time.Millisecond)

	bio.WriteLevel(action.OutputBlender, hal.High)
	poller.Stop()
	assert.False(t, poller.IsRunning())
	assert.True(t, srv.coil(3))
}
