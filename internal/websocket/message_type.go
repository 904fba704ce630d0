package websocket

import "encoding/json"

// ClientMessageType enumerates the frames a client may send upstream.
type ClientMessageType string

const (
	ClientMessagePing        ClientMessageType = "Ping"
	ClientMessageBeginTyping ClientMessageType = "BeginTyping"
	ClientMessageEndTyping   ClientMessageType = "EndTyping"
)

// ClientFrame is one upstream frame from the client.
type ClientFrame struct {
	Type ClientMessageType `json:"type"`

	// Data echoes back on Pong frames.
	Data json.RawMessage `json:"data,omitempty"`

	// Channel targets typing frames.
	Channel string `json:"channel,omitempty"`
}

// Pong answers a client Ping, echoing its payload.
type Pong struct {
	Data json.RawMessage `json:"data,omitempty"`
}

func (*Pong) EventType() string { return "Pong" }

// ErrorFrame reports a protocol-level failure to the client.
type ErrorFrame struct {
	Error string `json:"error"`
}

func (*ErrorFrame) EventType() string { return "Error" }
