package tools

import (
	"context"
	"fmt"

	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/history"
	"github.com/richard-senior/xthread/pkg/protocol"
)

const maxHistoryLimit = 100

// GetStateTool reports pending images and uploaded media ids
func GetStateTool() protocol.Tool {
	return protocol.Tool{
		Name:        "getState",
		Description: "Show the images waiting to be uploaded and the media IDs waiting to be posted, grouped by thread position.",
		InputSchema: schemaFor(&noArgs{}),
	}
}

type getStateResult struct {
	Success bool `json:"success"`
	automation.Snapshot
}

func (d *Dispatcher) handleGetState(ctx context.Context, args map[string]any) (any, error) {
	return getStateResult{Success: true, Snapshot: d.auto.GetState()}, nil
}

// ClearImagesTool throws away everything pending without posting
func ClearImagesTool() protocol.Tool {
	return protocol.Tool{
		Name:        "clearImages",
		Description: "Discard all generated/added images and uploaded media IDs without posting, and delete the stored image files.",
		InputSchema: schemaFor(&noArgs{}),
	}
}

type clearImagesResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Cleared int    `json:"cleared"`
}

func (d *Dispatcher) handleClearImages(ctx context.Context, args map[string]any) (any, error) {
	before := d.auto.GetState().TotalImages
	d.auto.ClearImages()
	return clearImagesResult{
		Success: true,
		Message: fmt.Sprintf("Cleared %d pending images and all media IDs", before),
		Cleared: before,
	}, nil
}

type getPostHistoryArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=10" jsonschema_description:"How many of the most recent threads to return (default: 10)"`
}

// GetPostHistoryTool lists threads this server has published
func GetPostHistoryTool() protocol.Tool {
	return protocol.Tool{
		Name:        "getPostHistory",
		Description: "List the most recently published threads, newest first.",
		InputSchema: schemaFor(&getPostHistoryArgs{}),
	}
}

type getPostHistoryResult struct {
	Success bool            `json:"success"`
	Enabled bool            `json:"enabled"`
	Count   int             `json:"count"`
	Threads []history.Entry `json:"threads"`
}

func (d *Dispatcher) handleGetPostHistory(ctx context.Context, args map[string]any) (any, error) {
	limit, err := intArg(args, "limit", history.DefaultLimit)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, invalidParams("limit must be between 1 and %d, got %d", maxHistoryLimit, limit)
	}
	if d.history == nil {
		return getPostHistoryResult{Success: true, Threads: []history.Entry{}}, nil
	}

	entries, err := d.history.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read post history: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return getPostHistoryResult{
		Success: true,
		Enabled: true,
		Count:   len(entries),
		Threads: entries,
	}, nil
}
