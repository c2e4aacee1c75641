package boardwatch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"
)

// ListFeed returns candidates for a board that exposes an RSS or Atom feed.
// gofeed normalizes both formats, so one code path covers either. Candidates
// go through the same canonicalization and dedup as scraped listings.
func (f *ListingFetcher) ListFeed(ctx context.Context, board Board) ([]PostCandidate, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseURLWithContext(board.Feed, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed for board %s: %w", board.Name, err)
	}
	return f.feedCandidates(feed, board)
}

// feedCandidates converts feed items to candidates, preserving feed order.
func (f *ListingFetcher) feedCandidates(feed *gofeed.Feed, board Board) ([]PostCandidate, error) {
	base, err := url.Parse(board.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid board URL: %w", err)
	}

	var candidates []PostCandidate
	seen := make(map[string]struct{})

	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}

		resolved, err := base.Parse(item.Link)
		if err != nil {
			continue
		}
		id := CanonicalURL(resolved, f.rules.DropParams)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		title := normalizeSpace(item.Title)
		if title == "" {
			title = "(No title)"
		}

		candidates = append(candidates, PostCandidate{
			ID:    id,
			Title: title,
			Board: board.Name,
		})
	}

	return candidates, nil
}
