package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Machine messages
	MessageTypeMachineEvent  MessageType = "machine_event"
	MessageTypeMachineStatus MessageType = "machine_status"

	// Hardware messages
	MessageTypeIOError MessageType = "io_error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MachineEventData wraps a machine event with its event type
type MachineEventData struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// IOErrorData reports a failed bus transaction
type IOErrorData struct {
	Device string `json:"device"`
	Error  string `json:"error"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewMachineEventMessage(event string, payload interface{}) Message {
	return NewMessage(MessageTypeMachineEvent, MachineEventData{
		Event:   event,
		Payload: payload,
	})
}

func NewMachineStatusMessage(status interface{}) Message {
	return NewMessage(MessageTypeMachineStatus, status)
}

func NewIOErrorMessage(device string, err error) Message {
	return NewMessage(MessageTypeIOError, IOErrorData{
		Device: device,
		Error:  err.Error(),
	})
}
