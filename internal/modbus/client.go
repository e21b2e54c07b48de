package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("not connected")

type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sendet ein Frame und wartet auf Response. Nach einem I/O-Fehler
// ist die Verbindung getrennt und muss neu aufgebaut werden.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	// Unique Transaction ID
	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// MBAP Header lesen, dann den Rest laut Length-Feld
	header := make([]byte, mbapLength)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}
	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || mbapLength-1+length > maxFrameSize {
		c.closeLocked()
		return nil, fmt.Errorf("invalid frame length: %d", length)
	}

	responseBuffer := make([]byte, mbapLength-1+length)
	copy(responseBuffer, header)
	if _, err := io.ReadFull(c.conn, responseBuffer[mbapLength:]); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// Transaction ID prüfen
	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	if err := response.Exception(); err != nil {
		return nil, err
	}

	return response, nil
}

func (c *Client) ReadCoils(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]bool, error) {
	response, err := c.SendFrame(ctx, ReadCoilsRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]bool, error) {
	response, err := c.SendFrame(ctx, ReadDiscreteInputsRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

// ReadHoldingRegisters liest Holding Registers
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	response, err := c.SendFrame(ctx, ReadHoldingRegistersRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

// ReadInputRegisters liest Input Registers
func (c *Client) ReadInputRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	response, err := c.SendFrame(ctx, ReadInputRegistersRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

func (c *Client) WriteSingleCoil(ctx context.Context, unitID uint8, addr uint16, on bool) error {
	_, err := c.SendFrame(ctx, WriteSingleCoilRequest(0, unitID, addr, on))
	return err
}

// WriteSingleRegister schreibt ein einzelnes Register
func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	_, err := c.SendFrame(ctx, WriteSingleRegisterRequest(0, unitID, addr, value))
	return err
}
