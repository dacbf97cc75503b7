// Package social publishes threads and uploads media to X (Twitter)
package social

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
	"github.com/dghubble/sling"
	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
)

// --- v2 create tweet ---

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// problem is the v2 error body
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p problem) describe() string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	}
	for _, e := range p.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

// --- v2 media/upload (simple upload) ---

type mediaUploadResponse struct {
	Data struct {
		ID       string `json:"id"`
		MediaKey string `json:"media_key"`
	} `json:"data"`
}

// Credentials are the four OAuth1 user context secrets
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// NewOAuth1Client wraps base (which may be nil) with OAuth1 request signing
func NewOAuth1Client(ctx context.Context, base *http.Client, creds Credentials) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, base)
	}
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	client := config.Client(ctx, token)
	// only the base transport is carried over
	if base != nil {
		client.Timeout = base.Timeout
	}
	return client
}

// XPoster implements automation.SocialPoster against the X API.
// Posts go through v2 /2/tweets, media through v2 /2/media/upload.
type XPoster struct {
	client *http.Client
	api    *sling.Sling
}

var _ automation.SocialPoster = (*XPoster)(nil)

// NewXPoster expects an already signing client, see NewOAuth1Client
func NewXPoster(client *http.Client, apiBase string) *XPoster {
	return &XPoster{
		client: client,
		api:    sling.New().Client(client).Base(withSlash(apiBase)),
	}
}

func withSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}

// UploadMedia uploads one image and returns its media id
func (x *XPoster) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("media_category", "tweet_image"); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="media"; filename="image"`)
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := x.api.New().
		Post("2/media/upload").
		Set("Content-Type", w.FormDataContentType()).
		Body(&body).
		Request()
	if err != nil {
		return "", fmt.Errorf("failed to build media upload request: %w", err)
	}

	var ok mediaUploadResponse
	var prob problem
	resp, err := x.api.Do(req.WithContext(ctx), &ok, &prob)
	if err != nil {
		return "", httpError("POST /2/media/upload", resp, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("POST /2/media/upload: status %d: %s", resp.StatusCode, prob.describe())
	}
	if ok.Data.ID == "" {
		return "", fmt.Errorf("POST /2/media/upload: response missing media id")
	}
	return ok.Data.ID, nil
}

// CreateTweet publishes a single post, optionally as a reply
func (x *XPoster) CreateTweet(ctx context.Context, text string, mediaIDs []string, inReplyTo string) (automation.PostedTweet, error) {
	body := tweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		body.Media = &tweetMedia{MediaIDs: mediaIDs}
	}
	if inReplyTo != "" {
		body.Reply = &tweetReply{InReplyToTweetID: inReplyTo}
	}

	req, err := x.api.New().Post("2/tweets").BodyJSON(body).Request()
	if err != nil {
		return automation.PostedTweet{}, fmt.Errorf("failed to build tweet request: %w", err)
	}

	var ok tweetResponse
	var prob problem
	resp, err := x.api.Do(req.WithContext(ctx), &ok, &prob)
	if err != nil {
		return automation.PostedTweet{}, httpError("POST /2/tweets", resp, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return automation.PostedTweet{}, fmt.Errorf("POST /2/tweets: status %d: %s", resp.StatusCode, prob.describe())
	}
	if ok.Data.ID == "" {
		return automation.PostedTweet{}, fmt.Errorf("POST /2/tweets: response missing tweet id")
	}
	return automation.PostedTweet{ID: ok.Data.ID, Text: ok.Data.Text}, nil
}

// PostThread publishes each post as a reply to the previous one.
// On failure the posts already published are returned alongside the error.
func (x *XPoster) PostThread(ctx context.Context, posts []automation.PostPayload) ([]automation.PostedTweet, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("no posts to publish")
	}
	published := make([]automation.PostedTweet, 0, len(posts))
	replyTo := ""
	for i, p := range posts {
		tweet, err := x.CreateTweet(ctx, p.Text, p.MediaIDs, replyTo)
		if err != nil {
			return published, fmt.Errorf("tweet %d of %d failed after %d published: %w", i+1, len(posts), len(published), err)
		}
		logger.Debug(fmt.Sprintf("Published %d/%d as %s in reply to %q", i+1, len(posts), tweet.ID, replyTo))
		published = append(published, tweet)
		replyTo = tweet.ID
	}
	return published, nil
}

// VerifyCredentials checks the OAuth1 credentials and returns the account's screen name.
// The go-twitter client always talks to the public v1.1 endpoint.
func VerifyCredentials(client *http.Client) (string, error) {
	user, _, err := twitter.NewClient(client).Accounts.VerifyCredentials(&twitter.AccountVerifyParams{
		SkipStatus:   twitter.Bool(true),
		IncludeEmail: twitter.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("failed to verify X credentials: %w", err)
	}
	return user.ScreenName, nil
}

func httpError(endpoint string, resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("%s: status %d: %w", endpoint, resp.StatusCode, err)
	}
	return fmt.Errorf("%s: %w", endpoint, err)
}
