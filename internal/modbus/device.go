package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/types"
	"github.com/google/uuid"
)

// Device is one Modbus station. Reads land in a value cache, writes can be
// queued and flushed by the poller so callers never wait on the bus.
type Device struct {
	ID          uuid.UUID
	Name        string
	Profile     *types.IOProfile
	Client      *Client
	UnitID      uint8
	RegisterMap map[string]*types.RegisterDefinition

	mu           sync.RWMutex
	lastValues   map[string]interface{}
	pending      map[string]interface{}
	pendingOrder []string
}

func NewDevice(
	name string,
	ipAddress string,
	port int,
	unitID uint8,
	profile *types.IOProfile,
	timeout time.Duration,
) (*Device, error) {
	registerMap := make(map[string]*types.RegisterDefinition)
	for i := range profile.Registers {
		reg := &profile.Registers[i]
		if _, dup := registerMap[reg.Name]; dup {
			return nil, fmt.Errorf("duplicate register name: %s", reg.Name)
		}
		registerMap[reg.Name] = reg
	}

	for logical, registerName := range profile.Bindings {
		if _, ok := registerMap[registerName]; !ok {
			return nil, fmt.Errorf("binding %s refers to unknown register %s", logical, registerName)
		}
	}

	address := fmt.Sprintf("%s:%d", ipAddress, port)

	return &Device{
		ID:          uuid.New(),
		Name:        name,
		Profile:     profile,
		Client:      NewClient(address, timeout),
		UnitID:      unitID,
		RegisterMap: registerMap,
		lastValues:  make(map[string]interface{}),
		pending:     make(map[string]interface{}),
	}, nil
}

func (d *Device) Connect() error {
	if err := d.Client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.Name, err)
	}
	return nil
}

func (d *Device) Disconnect() error {
	return d.Client.Close()
}

func (d *Device) Connected() bool {
	return d.Client.IsConnected()
}

func (d *Device) register(name string) (*types.RegisterDefinition, error) {
	reg, exists := d.RegisterMap[name]
	if !exists {
		return nil, fmt.Errorf("register not found: %s", name)
	}
	return reg, nil
}

// ReadRegister liest ein Register vom Bus und aktualisiert den Cache
func (d *Device) ReadRegister(ctx context.Context, registerName string) (interface{}, error) {
	reg, err := d.register(registerName)
	if err != nil {
		return nil, err
	}

	var value interface{}
	switch reg.Type {
	case types.RegisterTypeCoil, types.RegisterTypeDiscreteInput:
		read := d.Client.ReadCoils
		if reg.Type == types.RegisterTypeDiscreteInput {
			read = d.Client.ReadDiscreteInputs
		}
		bits, err := read(ctx, d.UnitID, reg.Address, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to read register %s: %w", registerName, err)
		}
		value = bits[0]

	case types.RegisterTypeInputRegister, types.RegisterTypeHoldingRegister:
		read := d.Client.ReadHoldingRegisters
		if reg.Type == types.RegisterTypeInputRegister {
			read = d.Client.ReadInputRegisters
		}
		values, err := read(ctx, d.UnitID, reg.Address, registerQuantity(reg.DataType))
		if err != nil {
			return nil, fmt.Errorf("failed to read register %s: %w", registerName, err)
		}
		value, err = convertRegisterValue(values, reg.DataType, reg.ScaleFactor)
		if err != nil {
			return nil, fmt.Errorf("failed to convert register %s: %w", registerName, err)
		}

	default:
		return nil, fmt.Errorf("unsupported register type: %s", reg.Type)
	}

	d.mu.Lock()
	// Ein ausstehender Schreibwert hat Vorrang vor dem alten Buswert
	if _, queued := d.pending[registerName]; !queued {
		d.lastValues[registerName] = value
	}
	d.mu.Unlock()

	return value, nil
}

// WriteRegister schreibt sofort auf den Bus
func (d *Device) WriteRegister(ctx context.Context, registerName string, value interface{}) error {
	reg, err := d.register(registerName)
	if err != nil {
		return err
	}

	if reg.Access != types.AccessTypeReadWrite {
		return fmt.Errorf("register %s is read-only", registerName)
	}

	switch reg.Type {
	case types.RegisterTypeCoil:
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("coil %s needs a bool, got %T", registerName, value)
		}
		err = d.Client.WriteSingleCoil(ctx, d.UnitID, reg.Address, on)

	case types.RegisterTypeHoldingRegister:
		regValue, convErr := toRegisterValue(value, reg)
		if convErr != nil {
			return convErr
		}
		err = d.Client.WriteSingleRegister(ctx, d.UnitID, reg.Address, regValue)

	default:
		return fmt.Errorf("register %s of type %s is not writable", registerName, reg.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to write register %s: %w", registerName, err)
	}

	d.mu.Lock()
	d.lastValues[registerName] = value
	d.mu.Unlock()
	return nil
}

// QueueWrite merkt einen Schreibwert für den nächsten Flush vor. Der Cache
// zeigt den Wert sofort an.
func (d *Device) QueueWrite(registerName string, value interface{}) error {
	reg, err := d.register(registerName)
	if err != nil {
		return err
	}
	if reg.Access != types.AccessTypeReadWrite {
		return fmt.Errorf("register %s is read-only", registerName)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, queued := d.pending[registerName]; !queued {
		d.pendingOrder = append(d.pendingOrder, registerName)
	}
	d.pending[registerName] = value
	d.lastValues[registerName] = value
	return nil
}

// PendingWrites returns the number of queued writes.
func (d *Device) PendingWrites() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pendingOrder)
}

// FlushWrites schreibt alle vorgemerkten Werte in Reihenfolge. Fehlgeschlagene
// Werte bleiben vorgemerkt.
func (d *Device) FlushWrites(ctx context.Context) error {
	d.mu.Lock()
	order := d.pendingOrder
	batch := make(map[string]interface{}, len(order))
	for _, name := range order {
		batch[name] = d.pending[name]
	}
	d.mu.Unlock()

	for i, name := range order {
		value := batch[name]
		if err := d.WriteRegister(ctx, name, value); err != nil {
			d.dropFlushed(order[:i], batch)
			return err
		}
	}
	d.dropFlushed(order, batch)
	return nil
}

// dropFlushed removes written entries unless they were queued again meanwhile.
func (d *Device) dropFlushed(written []string, batch map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range written {
		if d.pending[name] == batch[name] {
			delete(d.pending, name)
		}
	}
	remaining := d.pendingOrder[:0]
	for _, name := range d.pendingOrder {
		if _, ok := d.pending[name]; ok {
			remaining = append(remaining, name)
		}
	}
	d.pendingOrder = remaining
}

func (d *Device) GetLastValue(registerName string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, exists := d.lastValues[registerName]
	return value, exists
}

// Bool returns the cached value of a bit register, or of a numeric
// register as non-zero.
func (d *Device) Bool(registerName string) (bool, bool) {
	value, ok := d.GetLastValue(registerName)
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	}
	return false, false
}

// Int returns the cached value of a numeric register.
func (d *Device) Int(registerName string) (int64, bool) {
	value, ok := d.GetLastValue(registerName)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case uint16:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func registerQuantity(dataType types.DataType) uint16 {
	switch dataType {
	case types.DataTypeInt32, types.DataTypeUint32:
		return 2
	default:
		return 1
	}
}

func convertRegisterValue(registers []uint16, dataType types.DataType, scaleFactor float64) (interface{}, error) {
	if scaleFactor == 0 {
		scaleFactor = 1.0
	}
	if len(registers) < int(registerQuantity(dataType)) {
		return nil, fmt.Errorf("expected %d registers, got %d", registerQuantity(dataType), len(registers))
	}

	switch dataType {
	case types.DataTypeUint16:
		return float64(registers[0]) * scaleFactor, nil
	case types.DataTypeInt16:
		return float64(int16(registers[0])) * scaleFactor, nil
	case types.DataTypeUint32:
		val := uint32(registers[0])<<16 | uint32(registers[1])
		return float64(val) * scaleFactor, nil
	case types.DataTypeInt32:
		val := int32(uint32(registers[0])<<16 | uint32(registers[1]))
		return float64(val) * scaleFactor, nil
	case types.DataTypeBool:
		return registers[0] != 0, nil
	}

	return nil, fmt.Errorf("unsupported data type: %s", dataType)
}

func toRegisterValue(value interface{}, reg *types.RegisterDefinition) (uint16, error) {
	if reg.DataType != types.DataTypeUint16 && reg.DataType != types.DataTypeInt16 && reg.DataType != types.DataTypeBool {
		return 0, fmt.Errorf("only int16/uint16/bool write supported for register %s", reg.Name)
	}

	scale := reg.ScaleFactor
	if scale == 0 {
		scale = 1.0
	}

	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return uint16(v), nil
	case int16:
		return uint16(v), nil
	case uint16:
		return v, nil
	case float64:
		return uint16(v / scale), nil
	default:
		return 0, fmt.Errorf("unsupported value type: %T", value)
	}
}
