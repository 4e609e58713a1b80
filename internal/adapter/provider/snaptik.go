package provider

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

const snaptikBase = "https://snaptik.app"

// Snaptik scrapes snaptik.app. Its links are served without the watermark.
type Snaptik struct {
	opts Options
}

// NewSnaptik creates the snaptik provider.
func NewSnaptik(opts Options) *Snaptik {
	return &Snaptik{opts: opts.withDefaults(snaptikBase)}
}

func (p *Snaptik) Name() string { return "snaptik" }

// FetchCandidates reads the form token from the landing page, submits the
// link and parses the result fragment.
func (p *Snaptik) FetchCandidates(ctx context.Context, src domain.SourceURL) ([]domain.Descriptor, error) {
	client := session(p.opts.Client)
	landing := p.opts.BaseURL + "/en"

	page, err := httputil.Get(ctx, client, landing, nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	token, _ := doc.Find(`form input[name="token"]`).Attr("value")
	if token == "" {
		return nil, errMissingToken
	}

	form := url.Values{
		"url":   {src.String()},
		"lang":  {"en"},
		"token": {token},
	}
	body, err := httputil.PostForm(ctx, client, p.opts.BaseURL+"/abc2.php", form, map[string]string{
		"Referer": landing,
		"Origin":  p.opts.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	result, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	return parseSnaptik(result, p.opts.BaseURL)
}

func parseSnaptik(doc *goquery.Document, base string) ([]domain.Descriptor, error) {
	c := newCollector(base)

	doc.Find(".video-links a.download-file, a.button.download-file").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.add(href, domain.DeclaredVideo, domain.WatermarkAbsent)
	})

	// Photo posts list one card per slide.
	doc.Find(".photo .photo-links a, .column .photo a.btn").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.add(href, domain.DeclaredPhoto, domain.WatermarkAbsent)
	})

	if descs := c.result(); len(descs) > 0 {
		return descs, nil
	}
	return nil, pageError(doc, ".error-message, .notification.is-danger")
}
