package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/protocol"
	"github.com/richard-senior/xthread/pkg/tools"
)

// Request is a single tool invocation outside of an MCP session
type Request struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Result pairs a request with the dispatcher's answer
type Result struct {
	Tool    string          `json:"tool"`
	IsError bool            `json:"isError"`
	Output  json.RawMessage `json:"output"`
}

// ParseRequests accepts either one request object or an array of them
func ParseRequests(input []byte) ([]Request, error) {
	input = bytes.TrimSpace(input)
	if len(input) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	var reqs []Request
	if input[0] == '[' {
		if err := json.Unmarshal(input, &reqs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		var r Request
		if err := json.Unmarshal(input, &r); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		reqs = append(reqs, r)
	}
	for i, r := range reqs {
		if r.Tool == "" {
			return nil, fmt.Errorf("request %d has no tool name", i)
		}
	}
	return reqs, nil
}

// ProcessRequest runs each request in order against the same dispatcher, so a
// batch can generate images and post them in one go. Processing stops at the
// first failed tool call; the results gathered so far are returned.
func ProcessRequest(ctx context.Context, d *tools.Dispatcher, input []byte) ([]Result, error) {
	reqs, err := ParseRequests(input)
	if err != nil {
		logger.Error("Failed to parse input JSON", err)
		return nil, err
	}

	results := make([]Result, 0, len(reqs))
	for i, r := range reqs {
		logger.Info(fmt.Sprintf("Processing request %d of %d:", i+1, len(reqs)), r.Tool)
		res := d.Call(ctx, r.Tool, r.Arguments)
		results = append(results, toResult(r.Tool, res))
		if res.IsError {
			logger.Warn(fmt.Sprintf("Stopping after failed request %d", i+1))
			break
		}
	}
	return results, nil
}

func toResult(tool string, res *protocol.CallToolResult) Result {
	out := Result{Tool: tool, IsError: res.IsError}
	if len(res.Content) > 0 {
		out.Output = json.RawMessage(res.Content[0].Text)
	}
	return out
}

// Failed reports whether any result is an error
func Failed(results []Result) bool {
	for _, r := range results {
		if r.IsError {
			return true
		}
	}
	return false
}
