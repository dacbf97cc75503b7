package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

type stubImages struct{ calls int }

func (s *stubImages) GenerateImage(ctx context.Context, req automation.ImageRequest) ([]byte, error) {
	s.calls++
	return pngBytes, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if strings.Contains(imageURL, "missing") {
		return nil, fmt.Errorf("image request returned error status 404")
	}
	return pngBytes, nil
}

type recordingPoster struct {
	uploads int
	threads [][]automation.PostPayload
}

func (r *recordingPoster) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	r.uploads++
	return fmt.Sprintf("media-%d", r.uploads), nil
}

func (r *recordingPoster) PostThread(ctx context.Context, posts []automation.PostPayload) ([]automation.PostedTweet, error) {
	r.threads = append(r.threads, posts)
	out := make([]automation.PostedTweet, len(posts))
	for i, p := range posts {
		out[i] = automation.PostedTweet{ID: fmt.Sprintf("%d", 1000+i), Text: p.Text}
	}
	return out, nil
}

type harness struct {
	d       *Dispatcher
	images  *stubImages
	poster  *recordingPoster
	history *history.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{images: &stubImages{}, poster: &recordingPoster{}}
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h.history = store

	auto, err := automation.New(automation.Options{
		StoragePath: filepath.Join(t.TempDir(), "images"),
		Images:      h.images,
		Poster:      h.poster,
		Fetcher:     stubFetcher{},
		History:     store,
	})
	require.NoError(t, err)
	h.d = NewDispatcher(auto, store)
	h.d.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func (h *harness) call(t *testing.T, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res := h.d.Call(context.Background(), name, args)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	return out, res.IsError
}

func TestDefinitions(t *testing.T) {
	h := newHarness(t)
	defs := h.d.Definitions()

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		require.NotNil(t, d.InputSchema, d.Name)
		assert.Equal(t, "object", d.InputSchema.Type, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}
	assert.Equal(t, []string{
		"generateImages", "addImageFromUrl", "uploadImages", "postTweet",
		"getState", "clearImages", "getPostHistory",
	}, names)

	gen := defs[0].InputSchema
	assert.Equal(t, []string{"prompt"}, gen.Required)
	aspect, ok := gen.Properties.Get("aspectRatio")
	require.True(t, ok)
	assert.Equal(t, []any{"SQUARE", "LANDSCAPE", "PORTRAIT"}, aspect.Enum)
	thread, ok := gen.Properties.Get("threadNumber")
	require.True(t, ok)
	assert.Equal(t, "integer", thread.Type)

	post := defs[3].InputSchema
	assert.Equal(t, []string{"content"}, post.Required)
	tc, ok := post.Properties.Get("threadContent")
	require.True(t, ok)
	assert.Equal(t, "array", tc.Type)
}

func TestUnknownToolIsEnvelope(t *testing.T) {
	h := newHarness(t)
	out, isErr := h.call(t, "deleteEverything", nil)
	assert.True(t, isErr)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "MethodNotFound", out["errorKind"])
	assert.Equal(t, "deleteEverything", out["tool"])
	assert.Equal(t, "2025-01-02T03:04:05.000Z", out["timestamp"])
	assert.Contains(t, out["error"], "Unknown tool")
}

func TestInvalidParams(t *testing.T) {
	cases := []struct {
		tool string
		args map[string]any
	}{
		{"generateImages", map[string]any{}},
		{"generateImages", map[string]any{"prompt": 12}},
		{"generateImages", map[string]any{"prompt": "cat", "threadNumber": 1.5}},
		{"generateImages", map[string]any{"prompt": "cat", "threadNumber": -1.0}},
		{"generateImages", map[string]any{"prompt": "cat", "threadNumber": "one"}},
		{"generateImages", map[string]any{"prompt": "cat", "aspectRatio": "WIDE"}},
		{"generateImages", map[string]any{"prompt": "cat", "personGeneration": "EVERYONE"}},
		{"addImageFromUrl", map[string]any{}},
		{"addImageFromUrl", map[string]any{"imageUrl": "https://x/a.png", "threadNumber": -2.0}},
		{"postTweet", map[string]any{}},
		{"postTweet", map[string]any{"content": "hi", "threadContent": "not an array"}},
		{"postTweet", map[string]any{"content": "hi", "threadContent": []any{"ok", 3.0}}},
		{"getPostHistory", map[string]any{"limit": 0.0}},
		{"getPostHistory", map[string]any{"limit": 1000.0}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s %v", c.tool, c.args), func(t *testing.T) {
			h := newHarness(t)
			out, isErr := h.call(t, c.tool, c.args)
			assert.True(t, isErr)
			assert.Equal(t, "InvalidParams", out["errorKind"])
			assert.Equal(t, 0, h.images.calls)
			assert.Empty(t, h.poster.threads)
		})
	}
}

func TestGenerateImagesPayload(t *testing.T) {
	h := newHarness(t)
	out, isErr := h.call(t, "generateImages", map[string]any{"prompt": "a red fox", "threadNumber": 2.0})
	require.False(t, isErr, out)

	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Image generated successfully", out["message"])
	assert.Equal(t, 2.0, out["threadNumber"])
	assert.Equal(t, 1.0, out["totalImagesGenerated"])
	assert.Equal(t, []any{2.0}, out["threadsWithImages"])
	assert.Equal(t, "LANDSCAPE", out["aspectRatio"])
	assert.Equal(t, "ALLOW_ADULT", out["personGeneration"])
	assert.Contains(t, out["imagePath"], "a_red_fox_")
}

func TestAddImageFromURLDownloadError(t *testing.T) {
	h := newHarness(t)
	out, isErr := h.call(t, "addImageFromUrl", map[string]any{"imageUrl": "https://img.example/missing.png"})
	assert.True(t, isErr)
	assert.Equal(t, "DownloadError", out["errorKind"])
	assert.Contains(t, out["error"], "404")
}

func TestPostTweetTooLong(t *testing.T) {
	h := newHarness(t)
	out, isErr := h.call(t, "postTweet", map[string]any{"content": strings.Repeat("a", 300)})

	assert.True(t, isErr)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "ValidationError", out["errorKind"])
	assert.Contains(t, out["error"], "275")
	assert.Equal(t, "postTweet", out["tool"])
	assert.Empty(t, h.poster.threads)
}

func TestThreadWithImageOnReply(t *testing.T) {
	h := newHarness(t)

	_, isErr := h.call(t, "generateImages", map[string]any{"prompt": "diagram", "threadNumber": 1.0})
	require.False(t, isErr)

	out, isErr := h.call(t, "postTweet", map[string]any{"content": "A", "threadContent": []any{"B"}})
	require.False(t, isErr, out)

	assert.Equal(t, "Tweet posted successfully!", out["message"])
	assert.Equal(t, "1000", out["mainTweetId"])
	assert.Equal(t, 2.0, out["totalTweets"])
	assert.Equal(t, true, out["isThread"])
	assert.Equal(t, []any{"1001"}, out["threadTweetIds"])
	assert.Equal(t, "A", out["content"])

	require.Len(t, h.poster.threads, 1)
	posted := h.poster.threads[0]
	require.Len(t, posted, 2)
	assert.Empty(t, posted[0].MediaIDs)
	assert.Equal(t, []string{"media-1"}, posted[1].MediaIDs)

	state, _ := h.call(t, "getState", nil)
	assert.Equal(t, 0.0, state["totalImages"])
	assert.Equal(t, []any{}, state["threadsWithImages"])

	hist, isErr := h.call(t, "getPostHistory", nil)
	require.False(t, isErr)
	assert.Equal(t, true, hist["enabled"])
	assert.Equal(t, 1.0, hist["count"])
	threads := hist["threads"].([]any)
	first := threads[0].(map[string]any)
	assert.Equal(t, "1000", first["mainTweetId"])
	assert.Equal(t, 1.0, first["mediaCount"])
}

func TestPostTweetPreviewTruncates(t *testing.T) {
	h := newHarness(t)
	long := strings.Repeat("é", 150)
	out, isErr := h.call(t, "postTweet", map[string]any{"content": long})
	require.False(t, isErr)
	assert.Equal(t, strings.Repeat("é", 100)+"...", out["content"])
	assert.Equal(t, false, out["isThread"])
	assert.Equal(t, []any{}, out["threadTweetIds"])
}

func TestUploadImagesPayload(t *testing.T) {
	h := newHarness(t)

	out, isErr := h.call(t, "uploadImages", nil)
	require.False(t, isErr)
	assert.Equal(t, "Successfully uploaded 0 images to Twitter", out["message"])
	assert.Equal(t, false, out["readyForTweet"])
	assert.Equal(t, map[string]any{}, out["mediaIdsByThread"])

	h.call(t, "generateImages", map[string]any{"prompt": "x", "threadNumber": 10.0})
	h.call(t, "generateImages", map[string]any{"prompt": "y", "threadNumber": 2.0})
	h.call(t, "addImageFromUrl", map[string]any{"imageUrl": "https://img.example/a.png", "threadNumber": 2.0})

	out, isErr = h.call(t, "uploadImages", nil)
	require.False(t, isErr)
	assert.Equal(t, 3.0, out["uploadedCount"])
	assert.Equal(t, true, out["readyForTweet"])
	assert.Equal(t, []any{2.0, 10.0}, out["threadsWithImages"])
	assert.Equal(t, map[string]any{
		"2":  []any{"media-1", "media-2"},
		"10": []any{"media-3"},
	}, out["mediaIdsByThread"])
}

func TestClearImages(t *testing.T) {
	h := newHarness(t)
	h.call(t, "generateImages", map[string]any{"prompt": "x"})
	h.call(t, "generateImages", map[string]any{"prompt": "y", "threadNumber": 1.0})

	out, isErr := h.call(t, "clearImages", nil)
	require.False(t, isErr)
	assert.Equal(t, 2.0, out["cleared"])

	state, _ := h.call(t, "getState", nil)
	assert.Equal(t, 0.0, state["totalImages"])
}

func TestGetPostHistoryWithoutStore(t *testing.T) {
	auto, err := automation.New(automation.Options{
		StoragePath: t.TempDir(),
		Poster:      &recordingPoster{},
		Fetcher:     stubFetcher{},
	})
	require.NoError(t, err)
	d := NewDispatcher(auto, nil)

	res := d.Call(context.Background(), "getPostHistory", nil)
	assert.False(t, res.IsError)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, false, out["enabled"])
	assert.Equal(t, []any{}, out["threads"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, strings.Repeat("x", 100), preview(strings.Repeat("x", 100)))
	assert.Equal(t, strings.Repeat("x", 100)+"...", preview(strings.Repeat("x", 101)))
}
