package boardwatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Skip reasons returned by Extract. Both are policy decisions, not failures;
// the coordinator logs them and moves on to the next post.
var (
	// ErrGated indicates the post resolved to a login/consent/denial wall
	// instead of content.
	ErrGated = errors.New("post is behind a gate")
	// ErrWeakContent indicates the post had neither meaningful text nor any
	// media, so notifying on it would be noise.
	ErrWeakContent = errors.New("post has no meaningful content")
)

// ExtractRules declares how a post page is mined for content. Selector
// chains are ordered tables tried first-match-wins; keyword and substring
// lists are data so they track site drift without code changes.
type ExtractRules struct {
	// ContainerSelectors are tried in priority order to locate the main
	// content region; the whole document is the fallback.
	ContainerSelectors []string
	// StripSelectors remove non-content substructure from the container
	// before summarization.
	StripSelectors []string
	// GateURLPattern matches final resolved URLs that indicate a redirect
	// to a gate (login/consent page).
	GateURLPattern string
	// GateTitleKeywords flag a gate when any appears in the page title.
	GateTitleKeywords []string
	// GateBodyPairs flag a gate when both words of a pair co-occur in the
	// leading body text.
	GateBodyPairs [][2]string
	// CredentialSelector matches login-form inputs; their presence on a
	// post URL indicates a gate.
	CredentialSelector string
	// BoilerplatePhrases are site chrome strings removed from the summary.
	BoilerplatePhrases []string
	// SummaryMaxChars bounds the summary length.
	SummaryMaxChars int
	// MinSummaryChars is the weak-content text threshold.
	MinSummaryChars int
	// LazyAttrs are image attributes preferred over src, in order. Lazy
	// loaders park the real URL here and leave a placeholder in src.
	LazyAttrs []string
	// ImageExclude rejects any image URL containing one of these
	// substrings (logos, banners, ads, icons, placeholders).
	ImageExclude []string
	// ImageHosts, when non-empty, allowlists image hosts.
	ImageHosts []string
	// ImagePathPattern, when set, requires image URL paths to match a
	// content-path shape.
	ImagePathPattern string
	// VideoExts classify direct file URLs as video.
	VideoExts []string
	// EmbedHosts allowlists iframe embed hosts recorded as video links.
	EmbedHosts []string
}

// DefaultExtractRules returns the selector chains and filter lists this was
// built against. All of it is overridable from configuration.
func DefaultExtractRules() ExtractRules {
	return ExtractRules{
		ContainerSelectors: []string{
			".xe_content", "#bd_view", ".rd_body", "article",
			"#bo_v_con", ".bo_v_con", "div.view_content",
		},
		StripSelectors: []string{
			"script", "style", "noscript", "nav", ".comment", "#comments",
			".share", ".sns", ".bo_v_nb", ".post-meta",
		},
		GateURLPattern:    `/(login|signin|member|verify|adult)\b`,
		GateTitleKeywords: []string{"login", "sign in", "access denied", "verification"},
		GateBodyPairs: [][2]string{
			{"login", "member"},
			{"adult", "verification"},
			{"age", "verify"},
		},
		CredentialSelector: "input[type=password]",
		BoilerplatePhrases: []string{},
		SummaryMaxChars:    280,
		MinSummaryChars:    20,
		LazyAttrs:          []string{"data-src", "data-original", "data-echo", "data-lazy-src"},
		ImageExclude: []string{
			"logo", "banner", "ads", "icon", "favicon", "loading_img",
			"placeholder", "/thumb/", "blank.gif",
		},
		VideoExts: []string{".mp4", ".mov", ".webm", ".mkv", ".m4v"},
		EmbedHosts: []string{
			"youtube.com", "youtu.be", "vimeo.com",
		},
	}
}

// Extractor turns one PostCandidate into extracted content, or a skip.
type Extractor struct {
	rules            ExtractRules
	gateURLPattern   *regexp.Regexp
	imagePathPattern *regexp.Regexp
}

// NewExtractor compiles the rule patterns up front.
func NewExtractor(rules ExtractRules) (*Extractor, error) {
	e := &Extractor{rules: rules}

	var err error
	if rules.GateURLPattern != "" {
		if e.gateURLPattern, err = regexp.Compile(rules.GateURLPattern); err != nil {
			return nil, fmt.Errorf("invalid gate URL pattern: %w", err)
		}
	}
	if rules.ImagePathPattern != "" {
		if e.imagePathPattern, err = regexp.Compile(rules.ImagePathPattern); err != nil {
			return nil, fmt.Errorf("invalid image path pattern: %w", err)
		}
	}
	return e, nil
}

// Extract fetches the candidate's page and mines it for a summary and media.
// A gate or a weak page returns ErrGated/ErrWeakContent; any fetch or parse
// failure is an ordinary error. All three are local to this one post.
func (e *Extractor) Extract(ctx context.Context, session *Session, candidate PostCandidate) (*PostContent, error) {
	page, err := session.Fetch(ctx, candidate.ID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post %s: %w", candidate.ID, err)
	}
	if page.StatusCode == 401 || page.StatusCode == 403 {
		return nil, fmt.Errorf("%w: status %d", ErrGated, page.StatusCode)
	}
	if page.StatusCode != 200 {
		return nil, fmt.Errorf("post fetch %s returned status %d", candidate.ID, page.StatusCode)
	}
	return e.FromPage(page, candidate)
}

// FromPage runs gate detection, container selection, summarization, and
// media extraction on an already fetched page.
func (e *Extractor) FromPage(page *Page, candidate PostCandidate) (*PostContent, error) {
	if reason := e.gateReason(page); reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrGated, reason)
	}

	container := e.selectContainer(page.Doc)
	container = e.stripLayout(container)

	summary := e.summarize(container)
	media, embeds := e.extractMedia(container, candidate.ID)

	// Precision over recall: an empty shell with no media is noise, not a
	// post worth announcing.
	if len(summary) < e.rules.MinSummaryChars && len(media) == 0 && len(embeds) == 0 {
		return nil, ErrWeakContent
	}

	title := e.titleOverride(page.Doc)
	if title == "" {
		title = candidate.Title
	}

	return &PostContent{
		ID:      candidate.ID,
		Title:   title,
		Summary: summary,
		Media:   media,
		Embeds:  embeds,
	}, nil
}

// gateReason classifies the page as a gate, returning the matching signal
// for the log, or "" for a content page. Signals, in order: final resolved
// URL shape, title keywords, credential inputs, leading-body keyword pairs.
func (e *Extractor) gateReason(page *Page) string {
	if e.gateURLPattern != nil && e.gateURLPattern.MatchString(strings.ToLower(page.FinalURL)) {
		return "redirected to " + page.FinalURL
	}

	title := strings.ToLower(page.Doc.Find("title").First().Text())
	for _, keyword := range e.rules.GateTitleKeywords {
		if strings.Contains(title, strings.ToLower(keyword)) {
			return "title contains " + keyword
		}
	}

	if e.rules.CredentialSelector != "" && page.Doc.Find(e.rules.CredentialSelector).Length() > 0 {
		return "credential input present"
	}

	body := strings.ToLower(page.Doc.Find("body").Text())
	if len(body) > 1500 {
		body = body[:1500]
	}
	for _, pair := range e.rules.GateBodyPairs {
		if strings.Contains(body, strings.ToLower(pair[0])) && strings.Contains(body, strings.ToLower(pair[1])) {
			return fmt.Sprintf("body mentions %q and %q", pair[0], pair[1])
		}
	}

	return ""
}

// selectContainer tries the selector table in priority order and falls back
// to the whole document.
func (e *Extractor) selectContainer(doc *goquery.Document) *goquery.Selection {
	for _, selector := range e.rules.ContainerSelectors {
		if node := doc.Find(selector).First(); node.Length() > 0 {
			return node
		}
	}
	return doc.Selection
}

// stripLayout removes non-content substructure so the summary reflects
// authored content only. Works on a clone; the caller's document stays
// intact.
func (e *Extractor) stripLayout(container *goquery.Selection) *goquery.Selection {
	clone := container.Clone()
	for _, selector := range e.rules.StripSelectors {
		clone.Find(selector).Remove()
	}
	return clone
}

// summarize collapses whitespace, strips boilerplate phrases, and truncates
// to the configured bound with an ellipsis.
func (e *Extractor) summarize(container *goquery.Selection) string {
	text := normalizeSpace(container.Text())
	for _, phrase := range e.rules.BoilerplatePhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	text = normalizeSpace(text)

	max := e.rules.SummaryMaxChars
	if runes := []rune(text); max > 0 && len(runes) > max {
		text = strings.TrimSpace(string(runes[:max-1])) + "…"
	}
	return text
}

// titleOverride prefers og:title, then the document title, over whatever
// truncated text the listing carried.
func (e *Extractor) titleOverride(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := normalizeSpace(og); title != "" {
			return title
		}
	}
	return normalizeSpace(doc.Find("title").First().Text())
}

// extractMedia enumerates images, direct video sources, and allowlisted
// embeds in document order, deduplicated by URL and capped at
// MaxMediaPerPost.
func (e *Extractor) extractMedia(container *goquery.Selection, postURL string) ([]MediaRef, []string) {
	base, err := url.Parse(postURL)
	if err != nil {
		return nil, nil
	}

	var media []MediaRef
	seen := make(map[string]struct{})

	add := func(ref MediaRef) {
		if len(media) >= MaxMediaPerPost {
			return
		}
		if _, dup := seen[ref.URL]; dup {
			return
		}
		seen[ref.URL] = struct{}{}
		media = append(media, ref)
	}

	container.Find("img").Each(func(i int, img *goquery.Selection) {
		src := e.imageSource(img)
		if src == "" {
			return
		}
		abs, ok := absoluteURL(base, src)
		if !ok || !e.imageAllowed(abs) {
			return
		}
		add(MediaRef{URL: abs, Kind: MediaImage})
	})

	container.Find("video source, video[src]").Each(func(i int, v *goquery.Selection) {
		src, ok := v.Attr("src")
		if !ok {
			return
		}
		abs, ok := absoluteURL(base, src)
		if !ok || !e.isVideoURL(abs) {
			return
		}
		add(MediaRef{URL: abs, Kind: MediaVideo})
	})

	var embeds []string
	embedSeen := make(map[string]struct{})
	container.Find("iframe").Each(func(i int, frame *goquery.Selection) {
		src, ok := frame.Attr("src")
		if !ok {
			return
		}
		abs, ok := absoluteURL(base, src)
		if !ok || !e.embedAllowed(abs) {
			return
		}
		if _, dup := embedSeen[abs]; dup {
			return
		}
		embedSeen[abs] = struct{}{}
		embeds = append(embeds, abs)
	})

	return media, embeds
}

// imageSource prefers lazy-load attributes over src. Lazy placeholders in
// src would otherwise be collected as broken links.
func (e *Extractor) imageSource(img *goquery.Selection) string {
	for _, attr := range e.rules.LazyAttrs {
		if src, ok := img.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
	}
	src, _ := img.Attr("src")
	return strings.TrimSpace(src)
}

// imageAllowed applies the exclusion substrings, the optional host
// allowlist, and the optional content-path shape.
func (e *Extractor) imageAllowed(abs string) bool {
	lower := strings.ToLower(abs)
	for _, substr := range e.rules.ImageExclude {
		if substr != "" && strings.Contains(lower, substr) {
			return false
		}
	}

	parsed, err := url.Parse(abs)
	if err != nil {
		return false
	}

	if len(e.rules.ImageHosts) > 0 {
		host := strings.ToLower(parsed.Hostname())
		allowed := false
		for _, allow := range e.rules.ImageHosts {
			if host == allow || strings.HasSuffix(host, "."+allow) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if e.imagePathPattern != nil && !e.imagePathPattern.MatchString(parsed.Path) {
		return false
	}

	return true
}

// isVideoURL reports whether the URL path carries a known video extension.
func (e *Extractor) isVideoURL(abs string) bool {
	parsed, err := url.Parse(abs)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range e.rules.VideoExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// embedAllowed reports whether the iframe host belongs to a known video
// hosting domain.
func (e *Extractor) embedAllowed(abs string) bool {
	parsed, err := url.Parse(abs)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allow := range e.rules.EmbedHosts {
		if host == allow || strings.HasSuffix(host, "."+allow) {
			return true
		}
	}
	return false
}

// absoluteURL resolves src against the post URL, handling protocol-relative
// links.
func absoluteURL(base *url.URL, src string) (string, bool) {
	if strings.HasPrefix(src, "//") {
		src = base.Scheme + ":" + src
	}
	resolved, err := base.Parse(src)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
