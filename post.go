package boardwatch

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// MediaKind classifies a media asset found in a post body.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// PostCandidate represents one entry discovered on a board listing before
// its content has been fetched. Identity is the canonical URL.
type PostCandidate struct {
	ID    string // canonical post URL
	Title string
	Board string // board identifier the candidate came from
}

// SeenKey returns the board-scoped ledger key for the candidate. Keys hash
// the URL so that the ledger stays opaque and fixed-width regardless of how
// long post URLs get.
func (p PostCandidate) SeenKey() string {
	sum := sha1.Sum([]byte(p.ID))
	return fmt.Sprintf("board:%s:%s", p.Board, hex.EncodeToString(sum[:]))
}

// MediaRef is a resolved, classified pointer to one media asset within a
// post. URLs are absolute.
type MediaRef struct {
	URL  string
	Kind MediaKind
}

// PostContent holds the extracted content of a single post: a bounded
// summary of the authored text plus an ordered, deduplicated media list.
type PostContent struct {
	ID      string
	Title   string
	Summary string
	Media   []MediaRef // first-seen order, capped at MaxMediaPerPost
	Embeds  []string   // allowlisted iframe embed URLs, delivered as links
}

// MaterializedMedia is one media item downloaded to local storage for
// delivery. The file lives under a run-scoped temp directory and is removed
// after the delivery attempt.
type MaterializedMedia struct {
	Kind MediaKind
	Path string
}

// MaxMediaPerPost caps the media list per post. Telegram rejects media
// groups larger than ten items.
const MaxMediaPerPost = 10
