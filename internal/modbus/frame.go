package modbus

import (
	"encoding/binary"
	"fmt"
)

// MBAP Header (7 Bytes) + Function Code + Data
type ModbusFrame struct {
	TransactionID uint16 // 2 Bytes - Request/Response Korrelation
	ProtocolID    uint16 // 2 Bytes - Immer 0x0000 für Modbus
	Length        uint16 // 2 Bytes - Anzahl folgender Bytes
	UnitID        uint8  // 1 Byte - Slave Address
	FunctionCode  uint8  // 1 Byte - Modbus Function
	Data          []byte // Variable Länge
}

// Modbus Function Codes
const (
	FuncCodeReadCoils            = 0x01
	FuncCodeReadDiscreteInputs   = 0x02
	FuncCodeReadHoldingRegisters = 0x03
	FuncCodeReadInputRegisters   = 0x04
	FuncCodeWriteSingleCoil      = 0x05
	FuncCodeWriteSingleRegister  = 0x06

	exceptionFlag = 0x80
	mbapLength    = 7
	maxFrameSize  = 260
)

// ExceptionError is a Modbus exception response from the device.
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X for function 0x%02X", e.Code, e.FunctionCode)
}

// Encode erstellt das komplette TCP Frame
func (f *ModbusFrame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // +2 für UnitID + FunctionCode

	frame := make([]byte, mbapLength+1+len(f.Data))

	// MBAP Header
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	// PDU
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parst ein empfangenes Frame
func DecodeFrame(data []byte) (*ModbusFrame, error) {
	if len(data) < mbapLength+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &ModbusFrame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if int(frame.Length)+6 != len(data) {
		return nil, fmt.Errorf("length mismatch: header says %d, got %d", frame.Length, len(data)-6)
	}

	if len(data) > mbapLength+1 {
		frame.Data = data[mbapLength+1:]
	}

	return frame, nil
}

// Exception liefert den Fehler einer Exception-Response, sonst nil
func (f *ModbusFrame) Exception() error {
	if f.FunctionCode&exceptionFlag == 0 {
		return nil
	}
	code := uint8(0)
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &ExceptionError{FunctionCode: f.FunctionCode &^ exceptionFlag, Code: code}
}

func readRequest(funcCode uint8, transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &ModbusFrame{
		TransactionID: transactionID,
		UnitID:        unitID,
		FunctionCode:  funcCode,
		Data:          data,
	}
}

// ReadCoilsRequest erstellt Request für Function Code 0x01
func ReadCoilsRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadCoils, transactionID, unitID, startAddr, quantity)
}

// ReadDiscreteInputsRequest erstellt Request für Function Code 0x02
func ReadDiscreteInputsRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadDiscreteInputs, transactionID, unitID, startAddr, quantity)
}

// ReadHoldingRegistersRequest erstellt Request für Function Code 0x03
func ReadHoldingRegistersRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadHoldingRegisters, transactionID, unitID, startAddr, quantity)
}

// ReadInputRegistersRequest erstellt Request für Function Code 0x04
func ReadInputRegistersRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadInputRegisters, transactionID, unitID, startAddr, quantity)
}

// WriteSingleCoilRequest erstellt Request für Function Code 0x05
func WriteSingleCoilRequest(transactionID uint16, unitID uint8, addr uint16, on bool) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	if on {
		binary.BigEndian.PutUint16(data[2:4], 0xFF00)
	}

	return &ModbusFrame{
		TransactionID: transactionID,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteSingleCoil,
		Data:          data,
	}
}

// WriteSingleRegisterRequest erstellt Request für Function Code 0x06
func WriteSingleRegisterRequest(transactionID uint16, unitID uint8, addr uint16, value uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &ModbusFrame{
		TransactionID: transactionID,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteSingleRegister,
		Data:          data,
	}
}

// ParseRegisterResponse parst Holding/Input Register Response
func (f *ModbusFrame) ParseRegisterResponse() ([]uint16, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 || byteCount%2 != 0 {
		return nil, fmt.Errorf("incomplete response data")
	}

	registers := make([]uint16, byteCount/2)
	for i := range registers {
		offset := 1 + (i * 2)
		registers[i] = binary.BigEndian.Uint16(f.Data[offset : offset+2])
	}

	return registers, nil
}

// ParseBitResponse parst Coil/Discrete Input Response, LSB zuerst
func (f *ModbusFrame) ParseBitResponse(quantity uint16) ([]bool, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 || byteCount*8 < int(quantity) {
		return nil, fmt.Errorf("incomplete response data")
	}

	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = f.Data[1+i/8]&(1<<(uint(i)%8)) != 0
	}

	return bits, nil
}
