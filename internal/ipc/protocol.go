package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/timerpool"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload        CommandType = "RELOAD"
	CommandGetStatus     CommandType = "GET_STATUS"
	CommandListTimelines CommandType = "LIST_TIMELINES"
	CommandListTimers    CommandType = "LIST_TIMERS"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	UptimeSeconds    int64           `json:"uptime_seconds"`
	DaemonRunning    bool            `json:"daemon_running"`
	FrameRate        uint            `json:"frame_rate"`
	CompositeVersion string          `json:"composite_version,omitempty"`
	Effects          []string        `json:"effects"`
	Pool             timerpool.Stats `json:"pool"`
}

// TimelinesData represents the data returned by LIST_TIMELINES
type TimelinesData struct {
	Timelines []effects.TimelineInfo `json:"timelines"`
}

// TimersData represents the data returned by LIST_TIMERS
type TimersData struct {
	Timers []timerpool.EntryInfo `json:"timers"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
