// Package automation buffers images per thread position, uploads them and
// publishes a root post followed by an ordered chain of replies.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/util"
)

// MaxPostLength is the longest text accepted for any single post
const MaxPostLength = 275

const (
	AspectSquare    = "SQUARE"
	AspectLandscape = "LANDSCAPE"
	AspectPortrait  = "PORTRAIT"

	PersonAllowAdult  = "ALLOW_ADULT"
	PersonAllowMinor  = "ALLOW_MINOR"
	PersonDisallowAll = "DISALLOW_ALL"
)

// ImageRequest is what gets sent to an ImageProvider
type ImageRequest struct {
	Prompt           string
	AspectRatio      string
	PersonGeneration string
}

// ImageProvider turns a prompt into raw image bytes.
// An empty result with a nil error means the provider produced no image.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}

// Fetcher downloads the bytes of a remote image
type Fetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// PostPayload is one entry of a thread about to be published
type PostPayload struct {
	Text     string   `json:"text"`
	MediaIDs []string `json:"mediaIds,omitempty"`
}

// PostedTweet is what the posting service hands back for each published post
type PostedTweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SocialPoster is the posting service
type SocialPoster interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
	// PostThread publishes posts in order, each replying to the one before it
	PostThread(ctx context.Context, posts []PostPayload) ([]PostedTweet, error)
}

// HistoryRecorder keeps a record of published threads
type HistoryRecorder interface {
	RecordThread(ctx context.Context, posts []PostedTweet, mediaCount int) error
}

type Options struct {
	StoragePath string
	Images      ImageProvider // may be nil, generation then fails
	Poster      SocialPoster
	Fetcher     Fetcher
	State       *State          // a fresh State is used when nil
	History     HistoryRecorder // optional
	Now         func() time.Time
}

// Automation owns the pending image state and talks to the providers
type Automation struct {
	storagePath string
	images      ImageProvider
	poster      SocialPoster
	fetcher     Fetcher
	state       *State
	history     HistoryRecorder
	now         func() time.Time
}

// New validates opts and creates the image storage directory
func New(opts Options) (*Automation, error) {
	if opts.StoragePath == "" {
		return nil, fmt.Errorf("image storage path is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("a social poster is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("an image fetcher is required")
	}
	if err := os.MkdirAll(opts.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	if opts.State == nil {
		opts.State = NewState()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Automation{
		storagePath: opts.StoragePath,
		images:      opts.Images,
		poster:      opts.Poster,
		fetcher:     opts.Fetcher,
		state:       opts.State,
		history:     opts.History,
		now:         opts.Now,
	}, nil
}

// GenerateOptions are the arguments of GenerateImage
type GenerateOptions struct {
	Prompt           string
	AspectRatio      string // defaults to LANDSCAPE
	PersonGeneration string // defaults to ALLOW_ADULT
	ThreadNumber     int
}

// GenerateImage asks the image provider for an image, stores it and queues it on the thread
func (a *Automation) GenerateImage(ctx context.Context, opts GenerateOptions) (string, error) {
	const op = "image generation failed"
	if opts.Prompt == "" {
		return "", newError(KindValidation, op, errors.New("prompt is required"))
	}
	if opts.ThreadNumber < 0 {
		return "", newError(KindValidation, op, fmt.Errorf("thread number must not be negative, got %d", opts.ThreadNumber))
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = AspectLandscape
	}
	if opts.PersonGeneration == "" {
		opts.PersonGeneration = PersonAllowAdult
	}
	if !oneOf(opts.AspectRatio, AspectSquare, AspectLandscape, AspectPortrait) {
		return "", newError(KindValidation, op, fmt.Errorf("unsupported aspect ratio %q", opts.AspectRatio))
	}
	if !oneOf(opts.PersonGeneration, PersonAllowAdult, PersonAllowMinor, PersonDisallowAll) {
		return "", newError(KindValidation, op, fmt.Errorf("unsupported person generation policy %q", opts.PersonGeneration))
	}
	if a.images == nil {
		return "", newError(KindGeneration, op, errors.New("no image provider is configured"))
	}

	logger.Info("Generating image with prompt:", opts.Prompt)
	data, err := a.images.GenerateImage(ctx, ImageRequest{
		Prompt:           opts.Prompt,
		AspectRatio:      opts.AspectRatio,
		PersonGeneration: opts.PersonGeneration,
	})
	if err != nil {
		return "", newError(KindGeneration, op, err)
	}
	if len(data) == 0 {
		return "", newError(KindGeneration, op, errors.New("no image data returned from the image provider"))
	}

	path, err := util.WriteTimestampedImage(a.storagePath, opts.Prompt, data, a.now())
	if err != nil {
		return "", newError(KindInternal, op, err)
	}
	a.state.AddImage(opts.ThreadNumber, path)
	logger.Info(fmt.Sprintf("Image saved to %s for thread %d", path, opts.ThreadNumber))
	return path, nil
}

// AddImageFromURL downloads an image and queues it on the thread
func (a *Automation) AddImageFromURL(ctx context.Context, threadNumber int, imageURL string) (string, error) {
	const op = "failed to add image from URL"
	if imageURL == "" {
		return "", newError(KindValidation, op, errors.New("image URL is required"))
	}
	if threadNumber < 0 {
		return "", newError(KindValidation, op, fmt.Errorf("thread number must not be negative, got %d", threadNumber))
	}

	logger.Info(fmt.Sprintf("Adding image from URL: %s for thread %d", imageURL, threadNumber))
	data, err := a.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		return "", newError(KindDownload, op, err)
	}
	if len(data) == 0 {
		return "", newError(KindDownload, op, fmt.Errorf("%s returned no data", imageURL))
	}

	tag := fmt.Sprintf("url_image_thread_%d", threadNumber)
	path, err := util.WriteTimestampedImage(a.storagePath, tag, data, a.now())
	if err != nil {
		return "", newError(KindInternal, op, err)
	}
	a.state.AddImage(threadNumber, path)
	logger.Info(fmt.Sprintf("Image from URL saved to %s for thread %d", path, threadNumber))
	return path, nil
}

// UploadImages uploads every pending image and records the resulting media ids.
// A failed image is logged and skipped; threads with nothing uploaded are left out.
func (a *Automation) UploadImages(ctx context.Context) (map[int][]string, error) {
	pending := a.state.PendingImages()
	if len(pending) == 0 {
		logger.Info("No images to upload")
		return map[int][]string{}, nil
	}

	logger.Info(fmt.Sprintf("Uploading images from %d thread(s)", len(pending)))
	uploaded := make(map[int][]string)
	for _, thread := range sortedThreads(pending) {
		var ids []string
		for _, path := range pending[thread] {
			if err := ctx.Err(); err != nil {
				return nil, newError(KindUpload, "upload cancelled", err)
			}
			id, err := a.uploadOne(ctx, path)
			if err != nil {
				logger.Warn(fmt.Sprintf("Skipping image %s due to error:", path), err)
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			logger.Warn(fmt.Sprintf("Thread %d: no valid images to upload", thread))
			continue
		}
		uploaded[thread] = ids
		logger.Info(fmt.Sprintf("Thread %d: uploaded %d images", thread, len(ids)))
	}

	a.state.SetMedia(uploaded)
	return uploaded, nil
}

func (a *Automation) uploadOne(ctx context.Context, path string) (string, error) {
	const op = "failed to upload image"
	data, err := util.ReadNonEmptyFile(path)
	if err != nil {
		return "", newError(KindUpload, op, err)
	}
	mimeType, err := util.DetermineImageMIMEType(data)
	if err != nil {
		// files are always written as .png
		mimeType = "image/png"
	}
	id, err := a.poster.UploadMedia(ctx, data, mimeType)
	if err != nil {
		return "", newError(KindUpload, op, err)
	}
	logger.Info(fmt.Sprintf("Uploaded image: %s -> Media ID: %s", path, id))
	return id, nil
}

// PostOptions are the arguments of PostTweet
type PostOptions struct {
	Content       string
	ThreadContent []string
}

// PostResult summarises a published thread
type PostResult struct {
	MainTweet    PostedTweet   `json:"mainTweet"`
	ThreadTweets []PostedTweet `json:"threadTweets"`
	TotalTweets  int           `json:"totalTweets"`
}

// PostTweet publishes content followed by each entry of ThreadContent as replies.
// Pending images are uploaded first. State is cleared only once the whole thread is out.
func (a *Automation) PostTweet(ctx context.Context, opts PostOptions) (*PostResult, error) {
	if opts.Content == "" {
		return nil, newError(KindValidation, "", errors.New("tweet content is required"))
	}
	if err := validatePostLength(opts.Content, "Main tweet"); err != nil {
		return nil, err
	}
	for i, text := range opts.ThreadContent {
		if err := validatePostLength(text, fmt.Sprintf("Thread tweet %d", i+1)); err != nil {
			return nil, err
		}
	}

	if a.state.HasPendingImages() {
		logger.Info("Uploading images before posting...")
		if _, err := a.UploadImages(ctx); err != nil {
			return nil, err
		}
	}

	posts := make([]PostPayload, 0, len(opts.ThreadContent)+1)
	mediaCount := 0
	for i, text := range append([]string{opts.Content}, opts.ThreadContent...) {
		p := PostPayload{Text: text, MediaIDs: a.state.Media(i)}
		if len(p.MediaIDs) > 0 {
			logger.Info(fmt.Sprintf("Attaching %d images to tweet %d", len(p.MediaIDs), i))
		}
		mediaCount += len(p.MediaIDs)
		posts = append(posts, p)
	}

	logger.Info(fmt.Sprintf("Posting thread with %d tweets...", len(posts)))
	results, err := a.poster.PostThread(ctx, posts)
	if err != nil {
		return nil, newError(KindPost, "failed to post tweet", err)
	}
	if len(results) != len(posts) {
		return nil, newError(KindPost, "failed to post tweet", fmt.Errorf("expected %d posts to be published, got %d", len(posts), len(results)))
	}
	for i, r := range results {
		logger.Info(fmt.Sprintf("Tweet %d posted with ID: %s", i, r.ID))
	}

	a.ClearImages()

	if a.history != nil {
		if err := a.history.RecordThread(ctx, results, mediaCount); err != nil {
			logger.Warn("Failed to record thread in post history:", err)
		}
	}

	return &PostResult{
		MainTweet:    results[0],
		ThreadTweets: results[1:],
		TotalTweets:  len(results),
	}, nil
}

// validatePostLength counts characters as unicode code points
func validatePostLength(content, label string) error {
	n := utf8.RuneCountInString(content)
	if n > MaxPostLength {
		return newError(KindValidation, "", fmt.Errorf("%s content is %d characters, which exceeds the %d character limit. Please shorten the content.", label, n, MaxPostLength))
	}
	return nil
}

// ClearImages resets the state and deletes everything in image storage.
// Deletion failures are logged only.
func (a *Automation) ClearImages() {
	a.state.Reset()
	errs := util.RemoveDirContents(a.storagePath)
	for _, err := range errs {
		logger.Error("Error clearing image files:", err)
	}
	if len(errs) == 0 {
		logger.Info("Cleared all images from storage and reset media IDs")
	}
}

// GetState returns a snapshot of the pending and uploaded state
func (a *Automation) GetState() Snapshot {
	return a.state.snapshot(a.storagePath)
}

// StoragePath is the directory pending images are written to
func (a *Automation) StoragePath() string {
	return a.storagePath
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
