// Package extract derives product fields and raw disclosure text from a
// product listing page.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"complyscan/internal/fetcher"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 10 << 20

	maxFeatures = 10
	maxImages   = 5

	featureMinRunes = 11
	featureMaxRunes = 199
	rawTextMinRunes = 21
	rawTextMaxRunes = 499
)

// rawTextSelectors are visited in order; every element of every selector
// with acceptable text length contributes to Page.RawMarkupText.
var rawTextSelectors = []matcher{
	hasClass("product-description"),
	hasClass("product-details"),
	hasClass("specifications"),
	classContains("detail"),
	classContains("info"),
	classContains("spec"),
	tagIs("p"),
	tagIs("span"),
	tagIs("div"),
}

// Image is a candidate product image reference found on the page.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Page is what the extractor derives from one product listing.
type Page struct {
	URL           string   `json:"url"`
	FinalURL      string   `json:"final_url,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Features      []string `json:"features"`
	Images        []Image  `json:"images"`
	RawMarkupText string   `json:"raw_text"`
}

// ImageURLs returns the image URLs in page order.
func (p *Page) ImageURLs() []string {
	out := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		out = append(out, img.URL)
	}
	return out
}

// Extractor fetches and parses product pages.
type Extractor struct {
	Client   *fetcher.Client
	Timeout  time.Duration
	MaxBytes int64
}

func New(client *fetcher.Client, timeout time.Duration, maxBytes int64) *Extractor {
	if client == nil {
		client = fetcher.NewClient()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{Client: client, Timeout: timeout, MaxBytes: maxBytes}
}

// Extract fetches rawURL and derives the page fields. It returns an
// *InvalidURLError for malformed input and a *fetcher.FetchError when the
// page cannot be retrieved; there is no partial success.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Page, error) {
	u, body, err := e.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	page, err := Parse(body, u)
	if err != nil {
		return nil, &fetcher.FetchError{URL: rawURL, Err: err}
	}
	page.URL = strings.TrimSpace(rawURL)
	return page, nil
}

// Markdown fetches rawURL and renders it as Markdown for previewing.
func (e *Extractor) Markdown(ctx context.Context, rawURL string) (string, error) {
	_, body, err := e.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert %s to markdown: %w", rawURL, err)
	}
	return md, nil
}

// fetch returns the final (post-redirect) URL and the body.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (*url.URL, []byte, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, nil, err
	}
	resp, err := e.Client.Get(ctx, u.String(), e.Timeout, e.MaxBytes)
	if err != nil {
		return nil, nil, err
	}
	if final, perr := url.Parse(resp.URL); perr == nil && final.Host != "" {
		u = final
	}
	return u, resp.Body, nil
}

// Parse derives page fields from an HTML document. base resolves relative
// image references and may be nil.
func Parse(body []byte, base *url.URL) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{
		Title:         title(doc),
		Description:   description(doc),
		Features:      features(doc),
		Images:        images(doc, base),
		RawMarkupText: rawMarkupText(doc),
	}
	if base != nil {
		page.FinalURL = base.String()
	}
	return page, nil
}

func title(doc *html.Node) string {
	for _, m := range []matcher{tagIs("h1"), classContains("title"), tagIs("title")} {
		if t := firstText(doc, m); t != "" {
			return t
		}
	}
	return ""
}

func description(doc *html.Node) string {
	if d := metaContent(doc, "description"); d != "" {
		return d
	}
	return firstText(doc, classContains("description"))
}

func features(doc *html.Node) []string {
	out := make([]string, 0)
	for _, n := range findAll(doc, listItem) {
		t := strings.TrimSpace(textOf(n))
		if runeLenWithin(t, featureMinRunes, featureMaxRunes) {
			out = append(out, t)
			if len(out) == maxFeatures {
				break
			}
		}
	}
	return out
}

func images(doc *html.Node, base *url.URL) []Image {
	out := make([]Image, 0)
	for _, n := range findAll(doc, tagIs("img")) {
		src := strings.TrimSpace(attr(n, "src"))
		if !strings.Contains(src, "product") && !strings.Contains(src, "packaging") {
			continue
		}
		abs, ok := resolve(src, base)
		if !ok {
			continue
		}
		out = append(out, Image{URL: abs, Alt: strings.TrimSpace(attr(n, "alt"))})
		if len(out) == maxImages {
			break
		}
	}
	return out
}

func rawMarkupText(doc *html.Node) string {
	var parts []string
	for _, m := range rawTextSelectors {
		for _, n := range findAll(doc, m) {
			t := strings.TrimSpace(textOf(n))
			if runeLenWithin(t, rawTextMinRunes, rawTextMaxRunes) {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

// resolve makes ref absolute against base and keeps only http(s) results.
func resolve(ref string, base *url.URL) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func runeLenWithin(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}
