package provider

import (
	"context"
	"net/http"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

// Fetcher downloads descriptor bytes over HTTPS.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A nil client uses httputil.NewClient.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httputil.NewClient()
	}
	return &Fetcher{client: client}
}

// Fetch implements domain.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, d domain.Descriptor, limit int64) ([]byte, error) {
	return httputil.Download(ctx, f.client, d.URL, d.Headers, limit)
}
