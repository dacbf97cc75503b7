package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/protocol"
)

// maxMessageSize bounds a single newline delimited message
const maxMessageSize = 16 * 1024 * 1024

// StdioTransport implements communication over newline delimited JSON on a reader/writer pair
type StdioTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewStdioTransport creates a new transport that uses stdin/stdout
func NewStdioTransport() *StdioTransport {
	return NewStreamTransport(os.Stdin, os.Stdout)
}

// NewStreamTransport creates a transport over arbitrary streams
func NewStreamTransport(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: bufio.NewWriter(w),
	}
}

// ReadRequest reads the next JSON-RPC request, skipping blank lines.
// Returns io.EOF once the client has gone away.
func (t *StdioTransport) ReadRequest() (*protocol.JsonRpcRequest, error) {
	for {
		line, err := t.readLine()
		if err != nil {
			if err == io.EOF {
				logger.Info("Received EOF on stdin, client disconnected")
			} else {
				logger.Error("Error reading from stdin:", err)
			}
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		logger.Debug("Received raw request:", string(line))

		request, err := protocol.ParseJsonRpcRequest(line)
		if err != nil {
			logger.Error("Failed to parse JSON-RPC request:", err)
			return nil, &ParseError{Err: err}
		}
		return request, nil
	}
}

func (t *StdioTransport) readLine() ([]byte, error) {
	var buf []byte
	tooBig := false
	for {
		chunk, isPrefix, err := t.reader.ReadLine()
		if err != nil {
			if err == io.EOF && len(buf) > 0 && !tooBig {
				return buf, nil
			}
			return nil, err
		}
		if !tooBig {
			buf = append(buf, chunk...)
			if len(buf) > maxMessageSize {
				// keep consuming so the next read starts on a fresh line
				tooBig, buf = true, nil
			}
		}
		if !isPrefix {
			if tooBig {
				return nil, &ParseError{Err: io.ErrShortBuffer}
			}
			return buf, nil
		}
	}
}

// WriteResponse writes a JSON-RPC response followed by a newline
func (t *StdioTransport) WriteResponse(response *protocol.JsonRpcResponse) error {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		logger.Error("Failed to marshal response:", err)
		return err
	}
	responseBytes = append(responseBytes, '\n')

	logger.Debug("Sending response:", string(responseBytes))

	if _, err := t.writer.Write(responseBytes); err != nil {
		logger.Error("Failed to write response:", err)
		return err
	}
	if err := t.writer.Flush(); err != nil {
		logger.Error("Failed to flush response:", err)
		return err
	}
	return nil
}
