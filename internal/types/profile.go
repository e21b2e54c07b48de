package types

// IOProfile describes the Modbus I/O station of a blender: its registers
// and which register carries each logical signal.
type IOProfile struct {
	Profile    ProfileInfo          `json:"io_profile"`
	Connection ConnectionConfig     `json:"connection"`
	Registers  []RegisterDefinition `json:"registers"`
	Bindings   map[string]string    `json:"bindings"` // logicalName -> registerName
}

type ProfileInfo struct {
	ID          string `json:"id"`
	Vendor      string `json:"vendor"`
	Model       string `json:"model"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

type ConnectionConfig struct {
	Protocol       string `json:"protocol"`
	Port           int    `json:"port"`
	UnitID         int    `json:"unit_id"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	TimeoutMs      int    `json:"timeout_ms"`
}

type RegisterDefinition struct {
	Name        string       `json:"name"`
	Address     uint16       `json:"address"`
	Type        RegisterType `json:"type"`
	DataType    DataType     `json:"data_type"`
	ScaleFactor float64      `json:"scale_factor,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Access      AccessType   `json:"access"`
	Description string       `json:"description,omitempty"`
}

type RegisterType string

const (
	RegisterTypeCoil            RegisterType = "coil"
	RegisterTypeDiscreteInput   RegisterType = "discrete_input"
	RegisterTypeInputRegister   RegisterType = "input_register"
	RegisterTypeHoldingRegister RegisterType = "holding_register"
)

// IsBit reports whether the register holds a single bit.
func (t RegisterType) IsBit() bool {
	return t == RegisterTypeCoil || t == RegisterTypeDiscreteInput
}

type DataType string

const (
	DataTypeBool   DataType = "bool"
	DataTypeInt16  DataType = "int16"
	DataTypeUint16 DataType = "uint16"
	DataTypeInt32  DataType = "int32"
	DataTypeUint32 DataType = "uint32"
)

type AccessType string

const (
	AccessTypeReadOnly  AccessType = "read_only"
	AccessTypeReadWrite AccessType = "read_write"
)

// Register returns the definition bound to a logical name.
func (p *IOProfile) Register(logical string) (*RegisterDefinition, bool) {
	name, ok := p.Bindings[logical]
	if !ok {
		return nil, false
	}
	for i := range p.Registers {
		if p.Registers[i].Name == name {
			return &p.Registers[i], true
		}
	}
	return nil, false
}
