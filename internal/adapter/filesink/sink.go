// Package filesink delivers selections to a local directory.
package filesink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

// Sink implements domain.Deliverer on the local filesystem.
type Sink struct {
	dir string

	mu      sync.Mutex
	written []string
}

// New creates a Sink writing into dir.
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

// Deliver writes every selected item as "<video id>_<n>.<ext>".
func (s *Sink) Deliver(ctx context.Context, target domain.Target, sel domain.Selection) error {
	if len(sel.Items) == 0 {
		return fmt.Errorf("empty %s selection", sel.Kind)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.dir, err)
	}

	base := baseName(target.SourceURL)
	for i, it := range sel.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := fmt.Sprintf("%s_%d%s", base, i+1, extension(sel.Kind, it.Data))
		p, err := httputil.SafeDownloadPath(s.dir, name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(p, it.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
		s.mu.Lock()
		s.written = append(s.written, p)
		s.mu.Unlock()
	}
	return nil
}

// Written returns the paths of every file written so far.
func (s *Sink) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

// baseName picks the last path segment of the source link, usually the video ID.
func baseName(src domain.SourceURL) string {
	u, err := url.Parse(src.String())
	if err != nil {
		return "tiktok"
	}
	name := path.Base(path.Clean("/" + u.Path))
	if name == "/" || name == "." {
		return "tiktok"
	}
	return name
}

func extension(kind domain.MediaKind, data []byte) string {
	switch kind {
	case domain.KindVideo:
		return ".mp4"
	case domain.KindAudio:
		return ".mp3"
	}
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
