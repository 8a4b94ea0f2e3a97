package jsonrpc

import "strconv"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "parse_error"
	case ErrorCodeInvalidRequest:
		return "invalid_request"
	case ErrorCodeMethodNotFound:
		return "method_not_found"
	case ErrorCodeInvalidParams:
		return "invalid_params"
	case ErrorCodeInternalError:
		return "internal_error"
	default:
		return strconv.Itoa(int(c))
	}
}
