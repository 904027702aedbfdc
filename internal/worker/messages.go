package worker

import (
	"fmt"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
)

// MessageType identifies a worker message
type MessageType string

const (
	// Inbound
	MessageTypeBundle MessageType = "bundle"
	MessageTypeAbort  MessageType = "abort"

	// Outbound
	MessageTypeStatus  MessageType = "status"
	MessageTypeBundled MessageType = "bundled"
	MessageTypeError   MessageType = "error"
)

// Request is a message sent to the worker
type Request struct {
	Type          MessageType           `json:"type"`
	Source        string                `json:"source"`
	TerserOptions bundler.MinifyOptions `json:"terserOptions,omitempty"`
}

// Ack is the immediate acknowledgement of a request, posted as a bare string
type Ack string

const (
	AckBundle Ack = "ack bundle"
	AckAbort  Ack = "ack abort"
)

// StatusEvent reports pipeline progress
type StatusEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// BundledEvent carries a finished bundle and the source that produced it
type BundledEvent struct {
	Type   MessageType     `json:"type"`
	Input  string          `json:"input"`
	Output []bundler.Chunk `json:"output"`
}

// ErrorEvent reports a failed run. No failure detail is exposed; Input
// identifies the run so consumers can drop stale failures.
type ErrorEvent struct {
	Type  MessageType `json:"type"`
	Input string      `json:"input,omitempty"`
}

// StatusCreatedBundle is posted once the module graph is built, before minification.
const StatusCreatedBundle = "created bundle"

func newStatus(message string) StatusEvent {
	return StatusEvent{Type: MessageTypeStatus, Message: message}
}

func newBundled(result *bundler.Result) BundledEvent {
	return BundledEvent{Type: MessageTypeBundled, Input: result.Input, Output: result.Chunks}
}

func newError(input string) ErrorEvent {
	return ErrorEvent{Type: MessageTypeError, Input: input}
}

// ProtocolError is returned for a request whose type the worker does not
// understand. It indicates a broken client and is fatal to the worker.
type ProtocolError struct {
	Type MessageType
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: unknown message type %q", e.Type)
}
