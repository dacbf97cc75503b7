package tools

import (
	"context"

	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/protocol"
)

type postTweetArgs struct {
	Content       string   `json:"content" jsonschema_description:"The main tweet content with formatting, emojis, etc."`
	ThreadContent []string `json:"threadContent,omitempty" jsonschema_description:"Optional array of additional tweets to create a thread"`
}

// PostTweetTool publishes the root post and any replies, attaching uploaded media
func PostTweetTool() protocol.Tool {
	return protocol.Tool{
		Name:        "postTweet",
		Description: "Post a tweet with optional images and thread support. Can handle formatted text with emojis and proper threading.",
		InputSchema: schemaFor(&postTweetArgs{}),
	}
}

type postTweetResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	MainTweetID    string   `json:"mainTweetId"`
	TotalTweets    int      `json:"totalTweets"`
	IsThread       bool     `json:"isThread"`
	ThreadTweetIDs []string `json:"threadTweetIds"`
	Content        string   `json:"content"`
}

func (d *Dispatcher) handlePostTweet(ctx context.Context, args map[string]any) (any, error) {
	content, err := stringArg(args, "content", true)
	if err != nil {
		return nil, invalidParams("Tweet content is required")
	}
	thread, err := stringSliceArg(args, "threadContent")
	if err != nil {
		return nil, err
	}

	result, err := d.auto.PostTweet(ctx, automation.PostOptions{
		Content:       content,
		ThreadContent: thread,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.ThreadTweets))
	for _, t := range result.ThreadTweets {
		ids = append(ids, t.ID)
	}
	return postTweetResult{
		Success:        true,
		Message:        "Tweet posted successfully!",
		MainTweetID:    result.MainTweet.ID,
		TotalTweets:    result.TotalTweets,
		IsThread:       len(thread) > 0,
		ThreadTweetIDs: ids,
		Content:        preview(content),
	}, nil
}
