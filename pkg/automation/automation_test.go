package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

type fakeImages struct {
	data []byte
	err  error
	reqs []ImageRequest
}

func (f *fakeImages) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	f.reqs = append(f.reqs, req)
	return f.data, f.err
}

type fakeFetcher struct {
	data map[string][]byte
	urls []string
}

func (f *fakeFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	f.urls = append(f.urls, imageURL)
	d, ok := f.data[imageURL]
	if !ok {
		return nil, fmt.Errorf("image request returned error status 404")
	}
	return d, nil
}

type fakePoster struct {
	uploads   int
	failEvery map[int]bool // upload call numbers (1 based) that fail
	postErr   error
	threads   [][]PostPayload
}

func (f *fakePoster) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.uploads++
	if f.failEvery[f.uploads] {
		return "", errors.New("media upload rejected")
	}
	return fmt.Sprintf("media-%d", f.uploads), nil
}

func (f *fakePoster) PostThread(ctx context.Context, posts []PostPayload) ([]PostedTweet, error) {
	f.threads = append(f.threads, posts)
	if f.postErr != nil {
		return nil, f.postErr
	}
	out := make([]PostedTweet, len(posts))
	for i, p := range posts {
		out[i] = PostedTweet{ID: fmt.Sprintf("tweet-%d", i), Text: p.Text}
	}
	return out, nil
}

type fakeHistory struct {
	recorded [][]PostedTweet
	media    []int
}

func (f *fakeHistory) RecordThread(ctx context.Context, posts []PostedTweet, mediaCount int) error {
	f.recorded = append(f.recorded, posts)
	f.media = append(f.media, mediaCount)
	return nil
}

type fixture struct {
	a       *Automation
	images  *fakeImages
	fetcher *fakeFetcher
	poster  *fakePoster
	history *fakeHistory
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		images: &fakeImages{data: pngBytes},
		fetcher: &fakeFetcher{data: map[string][]byte{
			"https://img.example/a.png": pngBytes,
			"https://img.example/b.png": pngBytes,
			"https://img.example/empty": {},
		}},
		poster:  &fakePoster{},
		history: &fakeHistory{},
		dir:     filepath.Join(t.TempDir(), "images"),
	}
	clock := time.UnixMilli(1700000000000)
	a, err := New(Options{
		StoragePath: f.dir,
		Images:      f.images,
		Poster:      f.poster,
		Fetcher:     f.fetcher,
		History:     f.history,
		Now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
	})
	require.NoError(t, err)
	f.a = a
	return f
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Poster: &fakePoster{}, Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
	_, err = New(Options{StoragePath: t.TempDir(), Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
	_, err = New(Options{StoragePath: t.TempDir(), Poster: &fakePoster{}})
	assert.Error(t, err)
}

func TestGenerateImageStoresAndQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "A cat, on a mat!", ThreadNumber: 2})
	require.NoError(t, err)

	assert.Equal(t, f.dir, filepath.Dir(path))
	assert.Equal(t, "A_cat__on_a_mat__1700000000001.png", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	require.Len(t, f.images.reqs, 1)
	assert.Equal(t, AspectLandscape, f.images.reqs[0].AspectRatio)
	assert.Equal(t, PersonAllowAdult, f.images.reqs[0].PersonGeneration)

	state := f.a.GetState()
	assert.Equal(t, map[int][]string{2: {path}}, state.Images)
	assert.Equal(t, 1, state.TotalImages)
	assert.Equal(t, []int{2}, state.ThreadsWithImages)
}

func TestGenerateImageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no payload", func(t *testing.T) {
		f := newFixture(t)
		f.images.data = nil
		_, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "x"})
		assert.Equal(t, KindGeneration, KindOf(err))
		assert.Equal(t, 0, f.a.GetState().TotalImages)
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(t)
		f.images.err = errors.New("quota exceeded")
		_, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "x"})
		assert.Equal(t, KindGeneration, KindOf(err))
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("bad aspect ratio", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "x", AspectRatio: "WIDE"})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Empty(t, f.images.reqs)
	})

	t.Run("negative thread", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "x", ThreadNumber: -1})
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("no provider", func(t *testing.T) {
		a, err := New(Options{StoragePath: t.TempDir(), Poster: &fakePoster{}, Fetcher: &fakeFetcher{}})
		require.NoError(t, err)
		_, err = a.GenerateImage(ctx, GenerateOptions{Prompt: "x"})
		assert.Equal(t, KindGeneration, KindOf(err))
	})
}

func TestImagesKeepCallOrderPerThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1, err := f.a.AddImageFromURL(ctx, 1, "https://img.example/a.png")
	require.NoError(t, err)
	p2, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "second", ThreadNumber: 1})
	require.NoError(t, err)
	p3, err := f.a.AddImageFromURL(ctx, 1, "https://img.example/b.png")
	require.NoError(t, err)
	p0, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/a.png")
	require.NoError(t, err)

	state := f.a.GetState()
	assert.Equal(t, []string{p1, p2, p3}, state.Images[1])
	assert.Equal(t, []string{p0}, state.Images[0])
	assert.Equal(t, []int{0, 1}, state.ThreadsWithImages)
	assert.Equal(t, 4, state.TotalImages)
	assert.True(t, strings.HasPrefix(filepath.Base(p1), "url_image_thread_1_"))
}

func TestAddImageFromURLFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/missing.png")
	assert.Equal(t, KindDownload, KindOf(err))

	_, err = f.a.AddImageFromURL(ctx, 0, "https://img.example/empty")
	assert.Equal(t, KindDownload, KindOf(err))

	_, err = f.a.AddImageFromURL(ctx, 0, "")
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Equal(t, 0, f.a.GetState().TotalImages)
}

func TestUploadImagesEmptyStateMakesNoCalls(t *testing.T) {
	f := newFixture(t)

	ids, err := f.a.UploadImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
	assert.Equal(t, 0, f.poster.uploads)
}

func TestUploadImagesSkipsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/a.png")
	require.NoError(t, err)
	_, err = f.a.AddImageFromURL(ctx, 0, "https://img.example/b.png")
	require.NoError(t, err)
	_, err = f.a.AddImageFromURL(ctx, 3, "https://img.example/a.png")
	require.NoError(t, err)

	// thread 0 uploads first (calls 1 and 2), thread 3 gets call 3
	f.poster.failEvery = map[int]bool{1: true, 3: true}

	ids, err := f.a.UploadImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int][]string{0: {"media-2"}}, ids)
	assert.Equal(t, 3, f.poster.uploads)
	assert.Equal(t, ids, f.a.GetState().UploadedMediaIDs)
}

func TestUploadImagesSkipsMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/a.png")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	_, err = f.a.AddImageFromURL(ctx, 0, "https://img.example/b.png")
	require.NoError(t, err)

	ids, err := f.a.UploadImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int][]string{0: {"media-1"}}, ids)
	assert.Equal(t, 1, f.poster.uploads)
}

func TestPostTweetRejectsLongContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.PostTweet(ctx, PostOptions{Content: strings.Repeat("x", 300)})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "300 characters")

	_, err = f.a.PostTweet(ctx, PostOptions{Content: "ok", ThreadContent: []string{"fine", strings.Repeat("y", 276)}})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "Thread tweet 2")

	assert.Empty(t, f.poster.threads)
	assert.Equal(t, 0, f.poster.uploads)
}

func TestPostTweetCountsCodePoints(t *testing.T) {
	f := newFixture(t)

	// 275 multi-byte runes is still within the limit
	_, err := f.a.PostTweet(context.Background(), PostOptions{Content: strings.Repeat("é", MaxPostLength)})
	require.NoError(t, err)
}

func TestPostTweetThreadWithMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/a.png")
	require.NoError(t, err)
	_, err = f.a.AddImageFromURL(ctx, 1, "https://img.example/b.png")
	require.NoError(t, err)

	res, err := f.a.PostTweet(ctx, PostOptions{Content: "A", ThreadContent: []string{"B"}})
	require.NoError(t, err)

	require.Len(t, f.poster.threads, 1)
	assert.Equal(t, []PostPayload{
		{Text: "A", MediaIDs: []string{"media-1"}},
		{Text: "B", MediaIDs: []string{"media-2"}},
	}, f.poster.threads[0])

	assert.Equal(t, "tweet-0", res.MainTweet.ID)
	assert.Equal(t, []PostedTweet{{ID: "tweet-1", Text: "B"}}, res.ThreadTweets)
	assert.Equal(t, 2, res.TotalTweets)

	state := f.a.GetState()
	assert.Equal(t, 0, state.TotalImages)
	assert.Empty(t, state.Images)
	assert.Empty(t, state.UploadedMediaIDs)
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.Len(t, f.history.recorded, 1)
	assert.Equal(t, 2, f.history.media[0])
}

func TestPostTweetIgnoresMediaForThreadsWithoutText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.AddImageFromURL(ctx, 5, "https://img.example/a.png")
	require.NoError(t, err)

	_, err = f.a.PostTweet(ctx, PostOptions{Content: "only root"})
	require.NoError(t, err)
	assert.Equal(t, []PostPayload{{Text: "only root"}}, f.poster.threads[0])
}

func TestPostTweetFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.AddImageFromURL(ctx, 0, "https://img.example/a.png")
	require.NoError(t, err)
	f.poster.postErr = errors.New("403 Forbidden")

	_, err = f.a.PostTweet(ctx, PostOptions{Content: "A"})
	require.Error(t, err)
	assert.Equal(t, KindPost, KindOf(err))

	state := f.a.GetState()
	assert.Equal(t, 1, state.TotalImages)
	assert.Equal(t, map[int][]string{0: {"media-1"}}, state.UploadedMediaIDs)
	assert.Empty(t, f.history.recorded)
}

func TestClearImagesRemovesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.a.GenerateImage(ctx, GenerateOptions{Prompt: "x"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "stray.png"), pngBytes, 0644))

	f.a.ClearImages()

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, f.a.GetState().TotalImages)
}

func TestStatesAreIsolated(t *testing.T) {
	s1, s2 := NewState(), NewState()
	s1.AddImage(0, "a.png")
	assert.True(t, s1.HasPendingImages())
	assert.False(t, s2.HasPendingImages())

	pending := s1.PendingImages()
	pending[0][0] = "mutated"
	assert.Equal(t, []string{"a.png"}, s1.PendingImages()[0])
}
