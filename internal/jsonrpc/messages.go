package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Message kinds reported by AnyMessage.Type.
const (
	KindRequest      = "request"
	KindNotification = "notification"
	KindResponse     = "response"
)

// ErrBatchUnsupported is returned by Parse for JSON-RPC batch arrays.
var ErrBatchUnsupported = errors.New("jsonrpc: batch messages are not supported")

// AnyMessage is a generic JSON-RPC message (request, notification, or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response represents a JSON-RPC response. The id member is always present;
// it is null when the request id could not be determined.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Parse decodes a single JSON-RPC message, rejecting batch arrays.
func Parse(data []byte) (*AnyMessage, error) {
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		if b == '[' {
			return nil, ErrBatchUnsupported
		}
		break
	}
	var msg AnyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UnmarshalJSON enforces JSON-RPC 2.0 structure while decoding.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method,omitempty"`
		Params         json.RawMessage `json:"params,omitempty"`
		Result         json.RawMessage `json:"result,omitempty"`
		Error          *Error          `json:"error,omitempty"`
		ID             *RequestID      `json:"id,omitempty"`
	}

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	if hasMethod {
		if hasResult || hasError {
			return fmt.Errorf("request message cannot have result or error fields")
		}
	} else {
		if hasResult && hasError {
			return fmt.Errorf("response message cannot have both result and error fields")
		}
		if !hasResult && !hasError {
			return fmt.Errorf("response message must have either result or error field")
		}
	}

	*m = AnyMessage(raw)
	return nil
}

// Type returns KindRequest, KindNotification or KindResponse.
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID.IsNil() {
			return KindNotification
		}
		return KindRequest
	}
	return KindResponse
}

// AsRequest returns the message as a Request, or nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}

	return &Request{
		JSONRPCVersion: m.JSONRPCVersion,
		Method:         m.Method,
		Params:         m.Params,
		ID:             m.ID,
	}
}
