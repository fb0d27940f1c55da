package content

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
)

// Result is what a metered fetch hands back to the caller.
type Result struct {
	Operation   string `json:"operation"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Fetcher resolves a gated operation to downloadable content. The gateway
// treats it as opaque; only the admission outcome depends on it.
type Fetcher interface {
	Fetch(ctx context.Context, operation string) (*Result, error)
}

var contentTypes = map[string]string{
	"fetch/video/":     "video/mp4",
	"fetch/audio/":     "audio/mpeg",
	"fetch/image/":     "image/jpeg",
	"fetch/instagram/": "video/mp4",
}

// CDNFetcher maps operations onto the delivery CDN.
type CDNFetcher struct {
	baseURL string
}

func NewCDNFetcher(baseURL string) *CDNFetcher {
	if baseURL == "" {
		baseURL = "https://cdn.alauda.co.mz"
	}
	return &CDNFetcher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *CDNFetcher) Fetch(_ context.Context, operation string) (*Result, error) {
	operation = strings.Trim(operation, "/")
	if operation == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation is required")
	}

	contentType := "application/octet-stream"
	for prefix, ct := range contentTypes {
		if strings.HasPrefix(operation, prefix) {
			contentType = ct
			break
		}
	}

	return &Result{
		Operation:   operation,
		ContentType: contentType,
		URL:         fmt.Sprintf("%s/%s", f.baseURL, operation),
	}, nil
}
