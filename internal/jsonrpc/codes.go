package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Bridge-specific codes, outside the reserved JSON-RPC range. Desktop MCP
// clients key retry behavior off these values, so they are part of the wire
// contract.
const (
	// ErrorCodeNotInitialized is returned for queries issued before the
	// backend has ever reported healthy.
	ErrorCodeNotInitialized ErrorCode = -32002
	// ErrorCodeBackendUnavailable indicates the launch/probe budget was
	// exhausted without the backend becoming healthy.
	ErrorCodeBackendUnavailable ErrorCode = -32010
	// ErrorCodeBackendTimeout indicates a forwarded call exceeded its deadline.
	ErrorCodeBackendTimeout ErrorCode = -32011
	// ErrorCodeBackendTransport indicates a network-level failure talking to
	// the backend.
	ErrorCodeBackendTransport ErrorCode = -32012
)
