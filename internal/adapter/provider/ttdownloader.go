package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

const ttdownloaderBase = "https://ttdownloader.com"

// TTDownloader scrapes ttdownloader.com, which lists a clean video, a
// watermarked video and the soundtrack for every post.
type TTDownloader struct {
	opts Options
}

// NewTTDownloader creates the ttdownloader provider.
func NewTTDownloader(opts Options) *TTDownloader {
	return &TTDownloader{opts: opts.withDefaults(ttdownloaderBase)}
}

func (p *TTDownloader) Name() string { return "ttdownloader" }

// FetchCandidates implements domain.Provider.
func (p *TTDownloader) FetchCandidates(ctx context.Context, src domain.SourceURL) ([]domain.Descriptor, error) {
	client := session(p.opts.Client)
	landing := p.opts.BaseURL + "/"

	page, err := httputil.Get(ctx, client, landing, nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	token, _ := doc.Find("input#token").Attr("value")
	if token == "" {
		return nil, errMissingToken
	}

	body, err := httputil.PostForm(ctx, client, p.opts.BaseURL+"/search/", url.Values{
		"url":    {src.String()},
		"format": {""},
		"token":  {token},
	}, map[string]string{
		"Referer":          landing,
		"Origin":           p.opts.BaseURL,
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, err
	}
	result, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	return parseTTDownloader(result, p.opts.BaseURL)
}

func parseTTDownloader(doc *goquery.Document, base string) ([]domain.Descriptor, error) {
	c := newCollector(base)

	doc.Find(".results-list-item, .result").Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Find("a.download-link").Attr("href")
		label := strings.ToLower(item.Text())
		switch {
		case strings.Contains(label, "no watermark"):
			c.add(href, domain.DeclaredVideo, domain.WatermarkAbsent)
		case strings.Contains(label, "watermark"):
			c.add(href, domain.DeclaredVideo, domain.WatermarkPresent)
		case strings.Contains(label, "audio"), strings.Contains(label, "music"), strings.Contains(label, "mp3"):
			c.add(href, domain.DeclaredMusic, domain.WatermarkUnknown)
		default:
			c.add(href, domain.DeclaredNone, domain.WatermarkUnknown)
		}
	})

	if descs := c.result(); len(descs) > 0 {
		return descs, nil
	}
	return nil, pageError(doc, ".error, .alert-danger")
}
