package boardwatch

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Materializer downloads media bytes into a run-scoped temp directory for
// delivery. Items are best-effort: one failed download never blocks the
// rest, since the destination can render a partial album.
type Materializer struct {
	dir string
}

// NewMaterializer creates the temp directory backing this run's media.
// Callers must pair it with Cleanup on every exit path.
func NewMaterializer(baseDir string) (*Materializer, error) {
	dir, err := os.MkdirTemp(baseDir, "boardwatch-media-")
	if err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Materializer{dir: dir}, nil
}

// Dir returns the temp directory path.
func (m *Materializer) Dir() string {
	return m.dir
}

// Cleanup removes the temp directory and everything in it.
func (m *Materializer) Cleanup() {
	os.RemoveAll(m.dir)
}

// Materialize downloads each media item in order, using the originating
// post URL as the referrer since many boards reject cross-referrer
// hot-linking. Failed items are logged and skipped; the returned slice is
// at most as long as the input.
func (m *Materializer) Materialize(ctx context.Context, session *Session, refs []MediaRef, referer string) []MaterializedMedia {
	if len(refs) > MaxMediaPerPost {
		refs = refs[:MaxMediaPerPost]
	}

	var items []MaterializedMedia
	for i, ref := range refs {
		item, err := m.download(ctx, session, ref, referer, i)
		if err != nil {
			log.Printf("ERROR: Failed to download media %s: %v", ref.URL, err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// download fetches one media item to a file named by its index.
func (m *Materializer) download(ctx context.Context, session *Session, ref MediaRef, referer string, index int) (MaterializedMedia, error) {
	resp, err := session.Get(ctx, ref.URL, referer)
	if err != nil {
		return MaterializedMedia{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return MaterializedMedia{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	ext := mediaExtension(ref.URL, resp.Header.Get("Content-Type"))
	kind := ref.Kind
	if kind == "" {
		kind = kindForExtension(ext)
	}

	file := filepath.Join(m.dir, fmt.Sprintf("media_%d%s", index, ext))
	out, err := os.Create(file)
	if err != nil {
		return MaterializedMedia{}, err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(file)
		return MaterializedMedia{}, err
	}
	if err := out.Close(); err != nil {
		os.Remove(file)
		return MaterializedMedia{}, err
	}

	return MaterializedMedia{Kind: kind, Path: file}, nil
}

// ReleaseAll removes the backing files of delivered media. Called after
// every delivery attempt, success or failure.
func (m *Materializer) ReleaseAll(items []MaterializedMedia) {
	for _, item := range items {
		os.Remove(item.Path)
	}
}

// mediaExtension determines a file extension from the URL path first,
// falling back to the declared content type, defaulting to .jpg.
func mediaExtension(rawURL, contentType string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" {
			return ext
		}
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mediaType {
			case "image/jpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			case "image/gif":
				return ".gif"
			case "image/webp":
				return ".webp"
			case "video/mp4":
				return ".mp4"
			case "video/webm":
				return ".webm"
			}
		}
	}

	return ".jpg"
}

// kindForExtension classifies an extension as image or video, defaulting to
// image when undeterminable.
func kindForExtension(ext string) MediaKind {
	switch strings.ToLower(ext) {
	case ".mp4", ".mov", ".avi", ".webm", ".mkv", ".m4v":
		return MediaVideo
	default:
		return MediaImage
	}
}
