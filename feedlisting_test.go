package boardwatch

import (
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Board t50</title>
	<item>
		<title>Newest feed post</title>
		<link>https://forum.example.com/board/610?page=1</link>
	</item>
	<item>
		<title>Duplicate of newest</title>
		<link>https://forum.example.com/board/610?sort=hot</link>
	</item>
	<item>
		<title>Older feed post</title>
		<link>https://forum.example.com/board/609</link>
	</item>
	<item>
		<title></title>
		<link>https://forum.example.com/board/608</link>
	</item>
</channel>
</rss>`

// TestFeedCandidates verifies feed items become canonicalized, deduplicated
// candidates in feed order
func TestFeedCandidates(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(testRSS)
	require.NoError(t, err)

	fetcher, err := NewListingFetcher(DefaultListingRules())
	require.NoError(t, err)

	board := Board{Name: "t50", URL: "https://forum.example.com/board/t50", Feed: "https://forum.example.com/board/t50/feed"}
	candidates, err := fetcher.feedCandidates(feed, board)
	require.NoError(t, err)

	require.Len(t, candidates, 3)
	assert.Equal(t, "https://forum.example.com/board/610", candidates[0].ID)
	assert.Equal(t, "Newest feed post", candidates[0].Title)
	assert.Equal(t, "https://forum.example.com/board/609", candidates[1].ID)
	assert.Equal(t, "(No title)", candidates[2].Title)
	assert.Equal(t, "t50", candidates[0].Board)
}

// TestFeedCandidates_SeenKeysMatchScraped verifies a post found via feed
// and via HTML listing produces the same ledger key
func TestFeedCandidates_SeenKeysMatchScraped(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(testRSS)
	require.NoError(t, err)

	fetcher, err := NewListingFetcher(DefaultListingRules())
	require.NoError(t, err)

	board := Board{Name: "t50", URL: "https://forum.example.com/board/t50"}
	fromFeed, err := fetcher.feedCandidates(feed, board)
	require.NoError(t, err)

	html := `<html><body><a href="/board/610?page=3">Newest feed post</a></body></html>`
	fromHTML, err := fetcher.Parse(parseDoc(t, html), board)
	require.NoError(t, err)

	require.NotEmpty(t, fromFeed)
	require.NotEmpty(t, fromHTML)
	assert.Equal(t, fromHTML[0].SeenKey(), fromFeed[0].SeenKey())
}
