package boardwatch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Board is a single forum listing page monitored as one unit of work. When
// Feed is set, candidates come from the board's RSS/Atom feed instead of the
// scraped HTML listing.
type Board struct {
	Name string
	URL  string
	Feed string
}

// ListingRules defines how hyperlinks on a listing page are classified into
// post links, notices, and navigation noise. All of it is data so that site
// markup drift is a config change, not a code change.
type ListingRules struct {
	// LinkSelector matches candidate anchor elements.
	LinkSelector string
	// TitleSelector optionally narrows the title text to a child element.
	TitleSelector string
	// NoticeSelector matches a marker inside the anchor (or its row) that
	// flags a pinned/notice entry. Notices are never new content.
	NoticeSelector string
	// PostPattern must match the URL path of a genuine content post.
	PostPattern string
	// TabPattern matches board tab/category paths, which never qualify.
	TabPattern string
	// DropParams lists query parameters stripped during canonicalization
	// (pagination, sorting, session tokens).
	DropParams []string
}

// DefaultListingRules returns rules for the common board engines this was
// built against. Every field can be overridden from configuration.
func DefaultListingRules() ListingRules {
	return ListingRules{
		LinkSelector:   "a[href]",
		NoticeSelector: "img.notice, .notice_icon, .bo_notice",
		PostPattern:    `/board/\d+$`,
		TabPattern:     `/board/[a-z]+\w*$`,
		DropParams: []string{
			"page", "sort", "order", "sca", "sfl", "stx", "sst", "sod",
			"PHPSESSID",
		},
	}
}

// ListingFetcher turns a board listing document into an ordered sequence of
// PostCandidates.
type ListingFetcher struct {
	rules       ListingRules
	postPattern *regexp.Regexp
	tabPattern  *regexp.Regexp
}

// NewListingFetcher compiles the rule patterns up front so a bad config
// fails at startup rather than mid-run.
func NewListingFetcher(rules ListingRules) (*ListingFetcher, error) {
	postPattern, err := regexp.Compile(rules.PostPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid post pattern: %w", err)
	}

	var tabPattern *regexp.Regexp
	if rules.TabPattern != "" {
		tabPattern, err = regexp.Compile(rules.TabPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid tab pattern: %w", err)
		}
	}

	return &ListingFetcher{
		rules:       rules,
		postPattern: postPattern,
		tabPattern:  tabPattern,
	}, nil
}

// ListBoard fetches the board's listing page and returns its candidates in
// natural (reverse-chronological) listing order. A fetch or parse failure
// returns an empty slice and an error; the caller decides board isolation.
func (f *ListingFetcher) ListBoard(ctx context.Context, session *Session, board Board) ([]PostCandidate, error) {
	page, err := session.Fetch(ctx, board.URL, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing for board %s: %w", board.Name, err)
	}
	if page.StatusCode != 200 {
		return nil, fmt.Errorf("listing fetch for board %s returned status %d", board.Name, page.StatusCode)
	}
	return f.Parse(page.Doc, board)
}

// Parse classifies every matching anchor in the document. Exposed separately
// from ListBoard so classification can be exercised without a network.
func (f *ListingFetcher) Parse(doc *goquery.Document, board Board) ([]PostCandidate, error) {
	base, err := url.Parse(board.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid board URL: %w", err)
	}

	var order []string
	byID := make(map[string]PostCandidate)

	doc.Find(f.rules.LinkSelector).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		// Pinned/notice entries are excluded unconditionally.
		if f.rules.NoticeSelector != "" && sel.Find(f.rules.NoticeSelector).Length() > 0 {
			return
		}

		canonical, ok := f.canonicalize(base, href)
		if !ok {
			return
		}

		title := f.titleOf(sel)
		if title == "" {
			return
		}

		// Same post reached twice on one page: keep the longest title, it
		// is usually the untruncated one.
		if existing, dup := byID[canonical]; dup {
			if len(title) > len(existing.Title) {
				existing.Title = title
				byID[canonical] = existing
			}
			return
		}

		byID[canonical] = PostCandidate{ID: canonical, Title: title, Board: board.Name}
		order = append(order, canonical)
	})

	candidates := make([]PostCandidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, byID[id])
	}
	return candidates, nil
}

// titleOf extracts the anchor's title text, preferring the configured child
// selector when it matches.
func (f *ListingFetcher) titleOf(sel *goquery.Selection) string {
	if f.rules.TitleSelector != "" {
		if child := sel.Find(f.rules.TitleSelector); child.Length() > 0 {
			if text := normalizeSpace(child.First().Text()); text != "" {
				return text
			}
		}
	}
	return normalizeSpace(sel.Text())
}

// canonicalize resolves href against the board URL and reports whether the
// result is a genuine post link. Links off-host, matching the board tab
// shape, or pointing back at the listing itself never qualify.
func (f *ListingFetcher) canonicalize(base *url.URL, href string) (string, bool) {
	resolved, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}

	if resolved.Host != base.Host {
		return "", false
	}

	path := strings.TrimRight(resolved.Path, "/")
	if path == strings.TrimRight(base.Path, "/") {
		return "", false
	}
	if !f.postPattern.MatchString(path) {
		return "", false
	}
	if f.tabPattern != nil && f.tabPattern.MatchString(path) {
		return "", false
	}

	return CanonicalURL(resolved, f.rules.DropParams), true
}

// CanonicalURL strips the given query parameters and the fragment so the
// same post reached via different pagination/sorting/session query strings
// yields one identity.
func CanonicalURL(u *url.URL, dropParams []string) string {
	canonical := *u
	canonical.Fragment = ""

	if canonical.RawQuery != "" {
		query := canonical.Query()
		for _, param := range dropParams {
			query.Del(param)
		}
		canonical.RawQuery = query.Encode()
	}

	return canonical.String()
}

// normalizeSpace collapses all runs of whitespace into single spaces.
func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
