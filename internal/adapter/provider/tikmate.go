package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

const tikmateBase = "https://tikmate.app"

// Tikmate uses the tikmate.app lookup API, which returns a token and video id
// that together address the watermark-free renditions.
type Tikmate struct {
	opts Options
}

// NewTikmate creates the tikmate provider.
func NewTikmate(opts Options) *Tikmate {
	return &Tikmate{opts: opts.withDefaults(tikmateBase)}
}

func (p *Tikmate) Name() string { return "tikmate" }

type tikmateLookup struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	ID      string `json:"id"`
}

// FetchCandidates implements domain.Provider.
func (p *Tikmate) FetchCandidates(ctx context.Context, src domain.SourceURL) ([]domain.Descriptor, error) {
	body, err := httputil.PostForm(ctx, p.opts.Client, p.opts.BaseURL+"/api/lookup",
		url.Values{"url": {src.String()}},
		map[string]string{
			"Accept":  "application/json",
			"Referer": p.opts.BaseURL + "/",
			"Origin":  p.opts.BaseURL,
		})
	if err != nil {
		return nil, err
	}

	var res tikmateLookup
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	if !res.Success {
		if res.Message == "" {
			res.Message = "lookup rejected"
		}
		return nil, errors.New(res.Message)
	}
	if res.Token == "" || res.ID == "" {
		return nil, nil
	}

	c := newCollector(p.opts.BaseURL)
	video := httputil.BuildURL(p.opts.BaseURL, "download", res.Token, res.ID+".mp4")
	c.add(video+"?hd=1", domain.DeclaredVideo, domain.WatermarkAbsent)
	c.add(video, domain.DeclaredVideo, domain.WatermarkAbsent)
	return c.result(), nil
}
