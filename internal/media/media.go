// Package media downloads product images to local storage for text recognition.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"complyscan/internal/fetcher"
)

const (
	DefaultMaxImages   = 3
	DefaultTimeout     = 15 * time.Second
	DefaultMaxBytes    = 20 << 20
	DefaultConcurrency = 3

	fallbackExt = ".jpg"
)

var knownExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// ImageDownloadError reports one image that could not be downloaded or stored.
// It never aborts a submission.
type ImageDownloadError struct {
	URL string
	Err error
}

func (e *ImageDownloadError) Error() string {
	return fmt.Sprintf("download image %s: %v", e.URL, e.Err)
}

func (e *ImageDownloadError) Unwrap() error { return e.Err }

// Image is a successfully stored product image.
type Image struct {
	SourceURL  string `json:"source_url"`
	StoredPath string `json:"stored_path"`
	Bytes      int    `json:"bytes"`
}

type Options struct {
	// DataDir is the root under which images/<productID>/ is created.
	DataDir     string
	MaxImages   int
	Timeout     time.Duration
	MaxBytes    int64
	Concurrency int
}

// Acquirer downloads a bounded number of images per submission. Failures are
// contained per image.
type Acquirer struct {
	client *fetcher.Client
	opts   Options
}

func New(client *fetcher.Client, opts Options) *Acquirer {
	if client == nil {
		client = fetcher.NewClient()
	}
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = DefaultMaxImages
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Acquirer{client: client, opts: opts}
}

// Dir is the directory holding the images of productID.
func (a *Acquirer) Dir(productID string) string {
	return filepath.Join(a.opts.DataDir, "images", productID)
}

// Acquire downloads up to MaxImages of urls into Dir(productID). The result
// keeps input order and omits failed images. A URL repeated within urls is
// downloaded once.
func (a *Acquirer) Acquire(ctx context.Context, productID string, urls []string) []Image {
	if len(urls) > a.opts.MaxImages {
		urls = urls[:a.opts.MaxImages]
	}
	if len(urls) == 0 {
		return []Image{}
	}

	dir := a.Dir(productID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("image directory unavailable; skipping downloads", "dir", dir, "err", err)
		return []Image{}
	}

	var (
		flight fetcher.Group
		done   = fetcher.NewCache[Image]()
		slots  = make([]*Image, len(urls))
	)

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			img, err := a.once(ctx, &flight, done, u, filepath.Join(dir, fmt.Sprintf("image_%d", i)))
			if err != nil {
				slog.Warn("image download failed", "product_id", productID, "url", u, "err", err)
				return nil
			}
			slots[i] = &img
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Image, 0, len(slots))
	for _, img := range slots {
		if img != nil {
			out = append(out, *img)
		}
	}
	return out
}

func (a *Acquirer) once(ctx context.Context, flight *fetcher.Group, done *fetcher.Cache[Image], rawURL, stem string) (Image, error) {
	if img, ok := done.Get(rawURL); ok {
		return img, nil
	}
	v, err, _ := flight.Do(rawURL, func() (any, error) {
		if img, ok := done.Get(rawURL); ok {
			return img, nil
		}
		img, err := a.download(ctx, rawURL, stem)
		if err != nil {
			return nil, err
		}
		done.Set(rawURL, img)
		return img, nil
	})
	if err != nil {
		return Image{}, err
	}
	return v.(Image), nil
}

func (a *Acquirer) download(ctx context.Context, rawURL, stem string) (Image, error) {
	resp, err := a.client.Get(ctx, rawURL, a.opts.Timeout, a.opts.MaxBytes)
	if err != nil {
		return Image{}, &ImageDownloadError{URL: rawURL, Err: err}
	}
	dest := stem + extension(rawURL, resp.ContentType)
	if err := os.WriteFile(dest, resp.Body, 0o644); err != nil {
		return Image{}, &ImageDownloadError{URL: rawURL, Err: err}
	}
	return Image{SourceURL: rawURL, StoredPath: dest, Bytes: len(resp.Body)}, nil
}

// extension picks the file extension from the URL path, then the content
// type, falling back to .jpg.
func extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownExts[ext] {
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		}
	}
	return fallbackExt
}
