package transport

import (
	"github.com/richard-senior/xthread/pkg/protocol"
)

// Transport defines the interface for communication methods
type Transport interface {
	ReadRequest() (*protocol.JsonRpcRequest, error)
	WriteResponse(*protocol.JsonRpcResponse) error
}

// ParseError is returned by ReadRequest when a message arrived but was not valid JSON-RPC.
// The stream is still usable afterwards.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "invalid JSON-RPC message: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
