package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/richard-senior/xthread/internal/logger"
)

// maxImageSize caps how much of a download is read into memory
const maxImageSize = 32 * 1024 * 1024

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewHTTPClient returns an HTTP client with the given timeout.
// If caBundle names a PEM file its certificates are added to the system roots.
func NewHTTPClient(timeout time.Duration, caBundle string) *http.Client {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		logger.Warn("Failed to get system cert pool", err)
		rootCAs = x509.NewCertPool()
	}

	if caBundle != "" {
		pem, err := os.ReadFile(caBundle)
		if err != nil {
			logger.Warn("Proceeding without extra CA bundle", err)
		} else if ok := rootCAs.AppendCertsFromPEM(pem); !ok {
			logger.Warn("Failed to append CA bundle", caBundle)
		} else {
			logger.Info("Added CA bundle to root CAs", caBundle)
		}
	}

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: rootCAs,
			},
			Proxy: http.ProxyFromEnvironment,
		},
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// ImageFetcher downloads images over HTTP.
// When a URL serves an HTML page its og:image or twitter:image is followed instead.
type ImageFetcher struct {
	client *http.Client
}

func NewImageFetcher(client *http.Client) *ImageFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageFetcher{client: client}
}

// FetchImage returns the bytes of the image at imageURL
func (f *ImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	data, contentType, err := f.get(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if !isHTML(contentType) {
		return data, nil
	}

	logger.Info("URL returned an HTML page, looking for a preview image:", imageURL)
	pageImage, err := findPreviewImage(imageURL, data)
	if err != nil {
		return nil, err
	}
	data, contentType, err = f.get(ctx, pageImage)
	if err != nil {
		return nil, err
	}
	if isHTML(contentType) {
		return nil, fmt.Errorf("preview image %s is not an image, content type: %s", pageImage, contentType)
	}
	return data, nil
}

func (f *ImageFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("invalid image URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/webp,image/apng,image/*,text/html;q=0.5,*/*;q=0.3")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("image request returned error status %d", resp.StatusCode)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("image at %s is larger than %d bytes", rawURL, maxImageSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// decodeBody undoes any Content-Encoding the server applied
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return r, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	default:
		logger.Warn("Unknown content encoding:", enc)
		return io.NopCloser(resp.Body), nil
	}
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// findPreviewImage pulls the og:image (or twitter:image) out of an HTML page, resolved against pageURL
func findPreviewImage(pageURL string, page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML page: %w", err)
	}

	var found string
	for _, sel := range []string{
		`meta[property="og:image"]`,
		`meta[property="og:image:url"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			found = strings.TrimSpace(v)
			break
		}
	}
	if found == "" {
		return "", fmt.Errorf("response is not an image and the page at %s has no preview image", pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(found)
	if err != nil {
		return "", fmt.Errorf("invalid preview image URL %q: %w", found, err)
	}
	return base.ResolveReference(ref).String(), nil
}
