package tools

import (
	"context"
	"fmt"

	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/protocol"
)

type generateImagesArgs struct {
	Prompt           string `json:"prompt" jsonschema_description:"The text prompt to generate an image from"`
	AspectRatio      string `json:"aspectRatio,omitempty" jsonschema:"enum=SQUARE,enum=LANDSCAPE,enum=PORTRAIT,default=LANDSCAPE" jsonschema_description:"The aspect ratio of the generated image (default: LANDSCAPE)"`
	PersonGeneration string `json:"personGeneration,omitempty" jsonschema:"enum=ALLOW_ADULT,enum=ALLOW_MINOR,enum=DISALLOW_ALL,default=ALLOW_ADULT" jsonschema_description:"Person generation policy (default: ALLOW_ADULT)"`
	ThreadNumber     int    `json:"threadNumber,omitempty" jsonschema:"minimum=0,default=0" jsonschema_description:"Which tweet in the thread to attach this image to. 0 = main tweet, 1 = first thread tweet, 2 = second thread tweet, etc. (default: 0)"`
}

// GenerateImagesTool generates one image per call and queues it on a thread position
func GenerateImagesTool() protocol.Tool {
	return protocol.Tool{
		Name:        "generateImages",
		Description: "Generate an image using AI based on a text prompt. Each call generates one image that gets stored for later use. Images can be attached to specific tweets in a thread.",
		InputSchema: schemaFor(&generateImagesArgs{}),
	}
}

type generateImagesResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	ImagePath            string `json:"imagePath"`
	ThreadNumber         int    `json:"threadNumber"`
	TotalImagesGenerated int    `json:"totalImagesGenerated"`
	ThreadsWithImages    []int  `json:"threadsWithImages"`
	Prompt               string `json:"prompt"`
	AspectRatio          string `json:"aspectRatio"`
	PersonGeneration     string `json:"personGeneration"`
}

func (d *Dispatcher) handleGenerateImages(ctx context.Context, args map[string]any) (any, error) {
	prompt, err := stringArg(args, "prompt", true)
	if err != nil {
		return nil, invalidParams("Prompt is required for image generation")
	}
	aspect, err := enumArg(args, "aspectRatio", automation.AspectLandscape,
		automation.AspectSquare, automation.AspectLandscape, automation.AspectPortrait)
	if err != nil {
		return nil, err
	}
	person, err := enumArg(args, "personGeneration", automation.PersonAllowAdult,
		automation.PersonAllowAdult, automation.PersonAllowMinor, automation.PersonDisallowAll)
	if err != nil {
		return nil, err
	}
	thread, err := threadNumberArg(args)
	if err != nil {
		return nil, err
	}

	path, err := d.auto.GenerateImage(ctx, automation.GenerateOptions{
		Prompt:           prompt,
		AspectRatio:      aspect,
		PersonGeneration: person,
		ThreadNumber:     thread,
	})
	if err != nil {
		return nil, err
	}

	state := d.auto.GetState()
	return generateImagesResult{
		Success:              true,
		Message:              "Image generated successfully",
		ImagePath:            path,
		ThreadNumber:         thread,
		TotalImagesGenerated: state.TotalImages,
		ThreadsWithImages:    state.ThreadsWithImages,
		Prompt:               prompt,
		AspectRatio:          aspect,
		PersonGeneration:     person,
	}, nil
}

type addImageFromURLArgs struct {
	ImageURL     string `json:"imageUrl" jsonschema:"format=uri" jsonschema_description:"The URL of the image to download and add. A web page URL works too when it advertises an og:image."`
	ThreadNumber int    `json:"threadNumber,omitempty" jsonschema:"minimum=0,default=0" jsonschema_description:"Which tweet in the thread to attach this image to. 0 = main tweet, 1 = first thread tweet, etc."`
}

// AddImageFromURLTool downloads an image and queues it on a thread position
func AddImageFromURLTool() protocol.Tool {
	return protocol.Tool{
		Name:        "addImageFromUrl",
		Description: "Add an image from a URL to a specific thread position. Downloads and stores the image for later use.",
		InputSchema: schemaFor(&addImageFromURLArgs{}),
	}
}

type addImageFromURLResult struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	ImagePath         string `json:"imagePath"`
	ImageURL          string `json:"imageUrl"`
	ThreadNumber      int    `json:"threadNumber"`
	TotalImages       int    `json:"totalImages"`
	ThreadsWithImages []int  `json:"threadsWithImages"`
}

func (d *Dispatcher) handleAddImageFromURL(ctx context.Context, args map[string]any) (any, error) {
	imageURL, err := stringArg(args, "imageUrl", true)
	if err != nil {
		return nil, invalidParams("Image URL is required")
	}
	thread, err := threadNumberArg(args)
	if err != nil {
		return nil, err
	}

	path, err := d.auto.AddImageFromURL(ctx, thread, imageURL)
	if err != nil {
		return nil, err
	}

	state := d.auto.GetState()
	return addImageFromURLResult{
		Success:           true,
		Message:           "Image added from URL successfully",
		ImagePath:         path,
		ImageURL:          imageURL,
		ThreadNumber:      thread,
		TotalImages:       state.TotalImages,
		ThreadsWithImages: state.ThreadsWithImages,
	}, nil
}

type noArgs struct{}

// UploadImagesTool uploads everything pending so it can be attached when posting
func UploadImagesTool() protocol.Tool {
	return protocol.Tool{
		Name:        "uploadImages",
		Description: "Upload all previously generated/added images to Twitter. This prepares them for use in tweets.",
		InputSchema: schemaFor(&noArgs{}),
	}
}

type uploadImagesResult struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	MediaIDsByThread  map[int][]string `json:"mediaIdsByThread"`
	UploadedCount     int              `json:"uploadedCount"`
	ThreadsWithImages []int            `json:"threadsWithImages"`
	ReadyForTweet     bool             `json:"readyForTweet"`
}

func (d *Dispatcher) handleUploadImages(ctx context.Context, args map[string]any) (any, error) {
	media, err := d.auto.UploadImages(ctx)
	if err != nil {
		return nil, err
	}
	if media == nil {
		media = map[int][]string{}
	}
	total := 0
	for _, ids := range media {
		total += len(ids)
	}
	return uploadImagesResult{
		Success:           true,
		Message:           fmt.Sprintf("Successfully uploaded %d images to Twitter", total),
		MediaIDsByThread:  media,
		UploadedCount:     total,
		ThreadsWithImages: sortedKeys(media),
		ReadyForTweet:     total > 0,
	}, nil
}
