package social

import (
	"context"
	"fmt"
	"sync"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
)

// DryRunPoster logs what would have been posted and hands back made up ids
type DryRunPoster struct {
	mu     sync.Mutex
	media  int
	tweets int
}

var _ automation.SocialPoster = (*DryRunPoster)(nil)

func NewDryRunPoster() *DryRunPoster {
	return &DryRunPoster{}
}

func (d *DryRunPoster) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media++
	id := fmt.Sprintf("dryrun-media-%d", d.media)
	logger.Highlight(fmt.Sprintf("DRY RUN: would upload %d bytes of %s as %s", len(data), mimeType, id))
	return id, nil
}

func (d *DryRunPoster) PostThread(ctx context.Context, posts []automation.PostPayload) ([]automation.PostedTweet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]automation.PostedTweet, 0, len(posts))
	for i, p := range posts {
		d.tweets++
		id := fmt.Sprintf("dryrun-tweet-%d", d.tweets)
		logger.Highlight(fmt.Sprintf("DRY RUN: tweet %d (%s) with %d media:", i, id, len(p.MediaIDs)), p.Text)
		out = append(out, automation.PostedTweet{ID: id, Text: p.Text})
	}
	return out, nil
}
