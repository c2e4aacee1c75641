package boardwatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultExtractRules())
	require.NoError(t, err)
	return e
}

func pageFor(t *testing.T, html, finalURL string) *Page {
	t.Helper()
	return &Page{
		StatusCode: 200,
		FinalURL:   finalURL,
		Doc:        parseDoc(t, html),
	}
}

func testCandidate() PostCandidate {
	return PostCandidate{
		ID:    "https://forum.example.com/board/501",
		Title: "Listing title",
		Board: "t50",
	}
}

// TestExtract_GateByTitle verifies a login-titled page short-circuits
// before any media extraction
func TestExtract_GateByTitle(t *testing.T) {
	html := `<html><head><title>Forum :: Login required</title></head>
		<body><div class="view_content"><img src="/up/a.jpg"></div></body></html>`

	_, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	assert.ErrorIs(t, err, ErrGated)
}

// TestExtract_GateByFinalURL verifies a redirect to a login path is a gate
func TestExtract_GateByFinalURL(t *testing.T) {
	html := `<html><head><title>Welcome</title></head><body>ordinary page body text here</body></html>`
	page := pageFor(t, html, "https://forum.example.com/login?next=/board/501")

	_, err := testExtractor(t).FromPage(page, testCandidate())
	assert.ErrorIs(t, err, ErrGated)
}

// TestExtract_GateByCredentialInput verifies a password field flags a gate
func TestExtract_GateByCredentialInput(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<form><input type="password" name="pw"></form></body></html>`

	_, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	assert.ErrorIs(t, err, ErrGated)
}

// TestExtract_GateByBodyPair verifies co-occurring gate keywords in the
// leading body text flag a gate
func TestExtract_GateByBodyPair(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		This page requires age confirmation. Please verify your age to continue.
	</body></html>`

	_, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	assert.ErrorIs(t, err, ErrGated)
}

// TestExtract_WeakContent verifies a short summary with no media is
// rejected as noise
func TestExtract_WeakContent(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">hi there</div></body></html>`

	_, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	assert.ErrorIs(t, err, ErrWeakContent)
}

// TestExtract_ContainerPriority verifies the selector table is tried in
// order, first match wins
func TestExtract_ContainerPriority(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="xe_content">The preferred container holds this authored body text.</div>
		<div class="view_content">A lower-priority container with different text entirely.</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.Contains(t, content.Summary, "preferred container")
	assert.NotContains(t, content.Summary, "lower-priority")
}

// TestExtract_FallsBackToDocument verifies extraction still works when no
// container selector matches
func TestExtract_FallsBackToDocument(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<p>Body text long enough to pass the weak-content threshold easily.</p>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.Contains(t, content.Summary, "weak-content threshold")
}

// TestExtract_StripsLayout verifies comments and navigation never reach
// the summary
func TestExtract_StripsLayout(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored content worth keeping in the summary output.
			<div class="comment">a reply that is not authored content</div>
			<nav>board navigation links</nav>
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.Contains(t, content.Summary, "worth keeping")
	assert.NotContains(t, content.Summary, "a reply")
	assert.NotContains(t, content.Summary, "navigation links")
}

// TestExtract_SummaryTruncation verifies the summary is bounded with an
// ellipsis marker
func TestExtract_SummaryTruncation(t *testing.T) {
	long := strings.Repeat("word ", 200)
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">` + long + `</div></body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(content.Summary)), 280)
	assert.True(t, strings.HasSuffix(content.Summary, "…"))
}

// TestExtract_BoilerplateStripped verifies configured chrome phrases are
// removed from the summary
func TestExtract_BoilerplateStripped(t *testing.T) {
	rules := DefaultExtractRules()
	rules.BoilerplatePhrases = []string{"Share this post", "Report abuse"}
	extractor, err := NewExtractor(rules)
	require.NoError(t, err)

	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">Share this post Actual authored words live here today. Report abuse</div>
	</body></html>`

	content, err := extractor.FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.Equal(t, "Actual authored words live here today.", content.Summary)
}

// TestExtract_LazyLoadPreferred verifies lazy-load attributes beat the
// placeholder src
func TestExtract_LazyLoadPreferred(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Some authored body text long enough to not be weak.
			<img src="/img/loading_img.gif" data-src="/up/real-photo.jpg">
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 1)
	assert.Equal(t, "https://forum.example.com/up/real-photo.jpg", content.Media[0].URL)
	assert.Equal(t, MediaImage, content.Media[0].Kind)
}

// TestExtract_ImageExclusions verifies blacklisted substrings reject
// chrome images
func TestExtract_ImageExclusions(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<img src="/img/site-logo.png">
			<img src="/img/banner-top.jpg">
			<img src="/up/photo-1.jpg">
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 1)
	assert.Contains(t, content.Media[0].URL, "photo-1.jpg")
}

// TestExtract_HostAllowlist verifies off-allowlist image hosts are
// rejected when an allowlist is configured
func TestExtract_HostAllowlist(t *testing.T) {
	rules := DefaultExtractRules()
	rules.ImageHosts = []string{"cdn.example.com"}
	extractor, err := NewExtractor(rules)
	require.NoError(t, err)

	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<img src="https://cdn.example.com/up/good.jpg">
			<img src="https://i3.cdn.example.com/up/also-good.jpg">
			<img src="https://evil.example.org/up/bad.jpg">
		</div>
	</body></html>`

	content, err := extractor.FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 2)
	assert.Contains(t, content.Media[0].URL, "cdn.example.com")
	assert.Contains(t, content.Media[1].URL, "cdn.example.com")
}

// TestExtract_MediaCap verifies twelve valid images yield exactly the
// first ten in document order
func TestExtract_MediaCap(t *testing.T) {
	var imgs strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&imgs, `<img src="/up/photo-%d.jpg">`, i)
	}
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">Gallery body text that is long enough.` + imgs.String() + `</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, MaxMediaPerPost)
	assert.Contains(t, content.Media[0].URL, "photo-1.jpg")
	assert.Contains(t, content.Media[9].URL, "photo-10.jpg")
}

// TestExtract_MediaDedup verifies repeated URLs keep first-seen order
func TestExtract_MediaDedup(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<img src="/up/a.jpg">
			<img src="/up/b.jpg">
			<img src="/up/a.jpg">
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 2)
	assert.Contains(t, content.Media[0].URL, "a.jpg")
	assert.Contains(t, content.Media[1].URL, "b.jpg")
}

// TestExtract_VideoSources verifies direct video sources are classified as
// video media
func TestExtract_VideoSources(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<video><source src="/up/clip.mp4"></video>
			<video><source src="/up/notes.txt"></video>
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 1)
	assert.Equal(t, MediaVideo, content.Media[0].Kind)
	assert.Contains(t, content.Media[0].URL, "clip.mp4")
}

// TestExtract_EmbedAllowlist verifies only allowlisted iframe hosts are
// recorded as embed links
func TestExtract_EmbedAllowlist(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<iframe src="https://www.youtube.com/embed/abc123"></iframe>
			<iframe src="https://tracker.example.org/frame"></iframe>
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Embeds, 1)
	assert.Contains(t, content.Embeds[0], "youtube.com")
}

// TestExtract_TitleOverride verifies og:title beats the listing title
func TestExtract_TitleOverride(t *testing.T) {
	html := `<html><head><title>Board</title>
		<meta property="og:title" content="The full untruncated title">
		</head><body>
		<div class="view_content">Authored text that comfortably clears the minimum length.</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	assert.Equal(t, "The full untruncated title", content.Title)
}

// TestExtract_ProtocolRelativeImage verifies //host URLs resolve with the
// post's scheme
func TestExtract_ProtocolRelativeImage(t *testing.T) {
	html := `<html><head><title>Board</title></head><body>
		<div class="view_content">
			Authored text that comfortably clears the minimum length.
			<img src="//cdn.example.com/up/pic.jpg">
		</div>
	</body></html>`

	content, err := testExtractor(t).FromPage(pageFor(t, html, testCandidate().ID), testCandidate())
	require.NoError(t, err)
	require.Len(t, content.Media, 1)
	assert.Equal(t, "https://cdn.example.com/up/pic.jpg", content.Media[0].URL)
}

// TestExtract_ForbiddenStatus verifies a 403 fetch maps to the gate class
func TestExtract_ForbiddenStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	session, err := NewSession(SessionConfig{BaseURL: server.URL})
	require.NoError(t, err)

	candidate := PostCandidate{ID: server.URL + "/board/9", Title: "x", Board: "t50"}
	_, err = testExtractor(t).Extract(context.Background(), session, candidate)
	assert.ErrorIs(t, err, ErrGated)
}
