package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

const mdownBase = "https://musicaldown.com"

// Mdown scrapes musicaldown.com. The landing form carries randomized field
// names, so every input is echoed back and the text field receives the link.
type Mdown struct {
	opts Options
}

// NewMdown creates the musicaldown provider.
func NewMdown(opts Options) *Mdown {
	return &Mdown{opts: opts.withDefaults(mdownBase)}
}

func (p *Mdown) Name() string { return "mdown" }

// FetchCandidates implements domain.Provider.
func (p *Mdown) FetchCandidates(ctx context.Context, src domain.SourceURL) ([]domain.Descriptor, error) {
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

	action, form, err := mdownForm(doc, src)
	if err != nil {
		return nil, err
	}
	target, err := httputil.Resolve(landing, action)
	if err != nil {
		return nil, err
	}

	body, err := httputil.PostForm(ctx, client, target, form, map[string]string{
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
	return parseMdown(result, p.opts.BaseURL)
}

// mdownForm copies the landing form's fields and puts src in the link field.
func mdownForm(doc *goquery.Document, src domain.SourceURL) (string, url.Values, error) {
	sel := doc.Find("form#submit-form")
	if sel.Length() == 0 {
		return "", nil, errMissingForm
	}
	action, _ := sel.Attr("action")
	if action == "" {
		action = "/download"
	}

	form := url.Values{}
	linkSet := false
	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		value, _ := in.Attr("value")
		typ, _ := in.Attr("type")
		if id, _ := in.Attr("id"); id == "link_url" || (!linkSet && (typ == "" || typ == "text" || typ == "url")) {
			value = src.String()
			linkSet = true
		}
		form.Set(name, value)
	})
	if !linkSet {
		return "", nil, errMissingForm
	}
	return action, form, nil
}

func parseMdown(doc *goquery.Document, base string) ([]domain.Descriptor, error) {
	c := newCollector(base)

	doc.Find("a[data-event]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		event, _ := s.Attr("data-event")
		switch {
		case strings.Contains(event, "mp3"):
			c.add(href, domain.DeclaredMusic, domain.WatermarkUnknown)
		case strings.Contains(event, "watermark"):
			c.add(href, domain.DeclaredVideo, domain.WatermarkPresent)
		case strings.Contains(event, "hd"), strings.Contains(event, "mp4"):
			c.add(href, domain.DeclaredVideo, domain.WatermarkAbsent)
		}
	})

	// Slideshow result pages list each image with its own download button.
	doc.Find(".card-image img[src], .slide img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		c.add(src, domain.DeclaredPhoto, domain.WatermarkUnknown)
	})

	if descs := c.result(); len(descs) > 0 {
		return descs, nil
	}
	return nil, pageError(doc, ".alert, #error-message")
}
