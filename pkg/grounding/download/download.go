// Package download fetches source dumps into a local input directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 * 1024

// StatusError is returned for a non-200 response
type StatusError struct {
	URL    string
	Status int
	// Detail is the title of an HTML error page, or a short plain-text body
	Detail string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("GET %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// Fetcher downloads files into Dir, reusing previous downloads
type Fetcher struct {
	Dir    string
	Client *http.Client
	// MaxRetries bounds retries of transient failures
	MaxRetries uint64
	// InitialInterval is the first retry delay; it grows exponentially
	InitialInterval time.Duration
}

// New creates a fetcher storing files under dir
func New(dir string) *Fetcher {
	return &Fetcher{
		Dir:             dir,
		Client:          http.DefaultClient,
		MaxRetries:      5,
		InitialInterval: time.Second,
	}
}

// Path returns where name is stored
func (f *Fetcher) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// Fetch downloads url into the file name under Dir and returns its path. An
// existing file is reused unless force is set. The file is written under a
// temporary name and renamed once complete, so an interrupted download never
// leaves a partial file behind.
func (f *Fetcher) Fetch(ctx context.Context, url, name string, force bool) (string, error) {
	path := f.Path(name)
	logger := log.WithFields(log.Fields{"url": url, "path": path})

	if !force {
		if fi, err := os.Stat(path); err == nil {
			logger.WithField("size", humanize.Bytes(uint64(fi.Size()))).Info("Using cached download")
			return path, nil
		}
	}

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}

	logger.Info("Downloading")
	start := time.Now()

	var written int64
	op := func() error {
		n, err := f.fetchOnce(ctx, url, path)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		written = n
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	if f.InitialInterval > 0 {
		exp.InitialInterval = f.InitialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, f.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		logger.WithError(err).WithField("retryIn", wait).Warn("Download failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	elapsed := time.Since(start)
	rate := ""
	if secs := elapsed.Seconds(); secs > 0 {
		rate = humanize.Bytes(uint64(float64(written)/secs)) + "/s"
	}
	logger.WithFields(log.Fields{
		"size": humanize.Bytes(uint64(written)),
		"took": elapsed.Round(time.Millisecond),
		"rate": rate,
	}).Info("Download complete")
	return path, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{
			URL:    url,
			Status: resp.StatusCode,
			Detail: errorDetail(resp),
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return 0, fmt.Errorf("short body: got %d of %d bytes: %w", n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, backoff.Permanent(err)
	}
	return n, nil
}

// errorDetail summarizes an error response body. Mirrors answer with HTML
// pages, so their title is used.
func errorDetail(resp *http.Response) string {
	body := io.LimitReader(resp.Body, maxErrorBody)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/html" {
		return htmlTitle(body)
	}
	if mediaType == "text/plain" {
		b, _ := io.ReadAll(body)
		s := strings.TrimSpace(string(b))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	return ""
}

// htmlTitle returns the text of the first <title> element
func htmlTitle(r io.Reader) string {
	doc, err := html.Parse(r)
	if err != nil {
		return ""
	}

	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			return strings.Join(strings.Fields(sb.String()), " ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}
