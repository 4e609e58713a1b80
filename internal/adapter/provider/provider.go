// Package provider implements domain.Provider for the third-party sites that
// resolve a TikTok link into downloadable media.
package provider

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

var (
	errMissingToken = errors.New("form token not found on landing page")
	errMissingForm  = errors.New("download form not found on landing page")
)

// Options configures a built-in provider.
type Options struct {
	BaseURL string       // overrides the public site, e.g. for a mirror
	Client  *http.Client // shared transport; each call gets its own cookie jar
}

func (o Options) withDefaults(base string) Options {
	if o.BaseURL == "" {
		o.BaseURL = base
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Client == nil {
		o.Client = httputil.NewClient()
	}
	return o
}

// session returns a copy of client with a fresh cookie jar. Provider sites tie
// their form tokens to a session cookie.
func session(client *http.Client) *http.Client {
	jar, _ := cookiejar.New(nil)
	c := *client
	c.Jar = jar
	return &c
}

func parseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// pageError returns the text of the site's error banner, if any.
func pageError(doc *goquery.Document, selector string) error {
	msg := strings.TrimSpace(doc.Find(selector).First().Text())
	if msg == "" {
		return nil
	}
	return fmt.Errorf("site error: %s", msg)
}

// collector builds a descriptor list, resolving links and dropping duplicates.
type collector struct {
	base    string
	referer string
	seen    map[string]bool
	descs   []domain.Descriptor
}

func newCollector(base string) *collector {
	return &collector{base: base, referer: base + "/", seen: make(map[string]bool)}
}

func (c *collector) add(href string, kind domain.DeclaredKind, wm domain.Watermark) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
		return
	}
	link, err := httputil.Resolve(c.base, href)
	if err != nil || c.seen[link] {
		return
	}
	c.seen[link] = true
	c.descs = append(c.descs, domain.Descriptor{
		URL:          link,
		Headers:      map[string]string{"Referer": c.referer},
		DeclaredKind: kind,
		Watermark:    wm,
	})
}

func (c *collector) result() []domain.Descriptor {
	return c.descs
}
