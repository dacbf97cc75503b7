// Package tools exposes the thread automation as named MCP tools
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/history"
	"github.com/richard-senior/xthread/pkg/protocol"
)

// Envelope error kinds produced by the dispatcher itself
const (
	KindMethodNotFound automation.Kind = "MethodNotFound"
	KindInvalidParams  automation.Kind = "InvalidParams"
)

// Automation is the part of *automation.Automation the tools drive
type Automation interface {
	GenerateImage(ctx context.Context, opts automation.GenerateOptions) (string, error)
	AddImageFromURL(ctx context.Context, threadNumber int, imageURL string) (string, error)
	UploadImages(ctx context.Context) (map[int][]string, error)
	PostTweet(ctx context.Context, opts automation.PostOptions) (*automation.PostResult, error)
	ClearImages()
	GetState() automation.Snapshot
}

// HistoryReader lists previously published threads
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

type registration struct {
	tool    protocol.Tool
	handler handlerFunc
}

// Dispatcher maps tool names onto Automation operations and turns every
// outcome, good or bad, into a JSON text result.
type Dispatcher struct {
	auto    Automation
	history HistoryReader
	tools   map[string]registration
	order   []string
	now     func() time.Time
}

// NewDispatcher registers the tools. history may be nil.
func NewDispatcher(auto Automation, hist HistoryReader) *Dispatcher {
	d := &Dispatcher{
		auto:    auto,
		history: hist,
		tools:   make(map[string]registration),
		now:     time.Now,
	}
	d.register(GenerateImagesTool(), d.handleGenerateImages)
	d.register(AddImageFromURLTool(), d.handleAddImageFromURL)
	d.register(UploadImagesTool(), d.handleUploadImages)
	d.register(PostTweetTool(), d.handlePostTweet)
	d.register(GetStateTool(), d.handleGetState)
	d.register(ClearImagesTool(), d.handleClearImages)
	d.register(GetPostHistoryTool(), d.handleGetPostHistory)
	return d
}

func (d *Dispatcher) register(tool protocol.Tool, h handlerFunc) {
	d.tools[tool.Name] = registration{tool: tool, handler: h}
	d.order = append(d.order, tool.Name)
}

// Definitions returns the tools in registration order
func (d *Dispatcher) Definitions() []protocol.Tool {
	out := make([]protocol.Tool, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].tool)
	}
	return out
}

// Call runs the named tool. It never returns a Go error: failures come back
// as an envelope with IsError set.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) *protocol.CallToolResult {
	reg, ok := d.tools[name]
	if !ok {
		return d.failure(name, &callError{kind: KindMethodNotFound, err: fmt.Errorf("Unknown tool: %s", name)})
	}
	if args == nil {
		args = map[string]any{}
	}

	logger.Info(fmt.Sprintf("Handling %s tool invocation", name))
	payload, err := reg.handler(ctx, args)
	if err != nil {
		return d.failure(name, err)
	}
	return d.encode(name, payload, false)
}

// ISO 8601 with milliseconds
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// envelope is what every failed call returns
type envelope struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
	ErrorKind automation.Kind `json:"errorKind"`
	Tool      string          `json:"tool"`
	Timestamp string          `json:"timestamp"`
}

func (d *Dispatcher) failure(name string, err error) *protocol.CallToolResult {
	kind := errorKind(err)
	logger.Error(fmt.Sprintf("Tool %s failed (%s):", name, kind), err.Error())
	return d.encode(name, envelope{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: kind,
		Tool:      name,
		Timestamp: d.now().UTC().Format(timestampFormat),
	}, true)
}

func (d *Dispatcher) encode(name string, payload any, isError bool) *protocol.CallToolResult {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		// only reachable with an unserialisable payload
		logger.Error("Failed to encode tool result", err)
		b = []byte(fmt.Sprintf(`{"success":false,"error":%q,"errorKind":%q,"tool":%q}`, err.Error(), automation.KindInternal, name))
		isError = true
	}
	return protocol.NewTextResult(string(b), isError)
}

// callError carries a dispatcher level error kind
type callError struct {
	kind automation.Kind
	err  error
}

func (e *callError) Error() string { return e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

func invalidParams(format string, a ...any) error {
	return &callError{kind: KindInvalidParams, err: fmt.Errorf(format, a...)}
}

func errorKind(err error) automation.Kind {
	var ce *callError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return automation.KindOf(err)
}

// schemaFor reflects an argument struct into an inline object schema
func schemaFor(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

func sortedKeys(m map[int][]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
