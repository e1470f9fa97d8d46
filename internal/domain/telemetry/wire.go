package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Wire constants shared with the in-frame bootstrap.
const (
	ConsoleSource   = "preview-console"
	ExportCommand   = "REQUEST_SCENE_EXPORT"
	TypeExportData  = "SCENE_EXPORT_DATA"
	TypeExportError = "SCENE_EXPORT_ERROR"
)

// ErrUnknownMessage is returned for messages that are neither telemetry nor
// an export reply.
var ErrUnknownMessage = errors.New("unrecognized frame message")

// Message is a cross-document message posted by the isolated frame.
type Message struct {
	Source  string          `json:"source,omitempty"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	Stack   string          `json:"stack,omitempty"`
	Type    string          `json:"type,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsConsole reports whether m is a tagged telemetry message.
func (m Message) IsConsole() bool { return m.Source == ConsoleSource }

// IsExportReply reports whether m answers an export request.
func (m Message) IsExportReply() bool {
	return m.Type == TypeExportData || m.Type == TypeExportError
}

// Decode parses one frame message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode frame message: %w", err)
	}
	if !m.IsConsole() && !m.IsExportReply() {
		return m, ErrUnknownMessage
	}
	return m, nil
}

// Encode serializes a frame message.
func Encode(m Message) ([]byte, error) {
	return sonic.Marshal(m)
}
