package boardwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrAuth indicates the session could not be authenticated. This is the one
// fatal error class: nothing downstream can succeed without a valid session.
var ErrAuth = errors.New("session not authenticated")

// defaultUserAgent is sent on every request unless overridden.
const defaultUserAgent = "Mozilla/5.0 (compatible; boardwatch/1.0)"

// Credentials holds a username/password pair for form-based login.
type Credentials struct {
	ID       string
	Password string
}

// LoginEndpoint is one candidate login form to try. Forum engines vary in
// both the endpoint path and the field names, so login walks an ordered list
// of candidates until one succeeds.
type LoginEndpoint struct {
	URL    string
	Fields map[string]string // form field name -> "id" or "password"
}

// SessionConfig configures a Session.
type SessionConfig struct {
	BaseURL   string        // site root, used for cookie scoping and auth checks
	UserAgent string        // optional User-Agent override
	Timeout   time.Duration // per-request timeout; default 20s
	// Cookies preset on the jar before any request (e.g. a consent cookie).
	Cookies map[string]string
	// Endpoints tried in order by Login.
	Endpoints []LoginEndpoint
	// AuthMarkers are substrings whose presence in the base page body
	// indicates a logged-in session (e.g. "logout").
	AuthMarkers []string
}

// Page is one fetched, parsed document along with the response metadata the
// gate detector needs.
type Page struct {
	StatusCode int
	FinalURL   string
	Doc        *goquery.Document
}

// Session is a cookie-bearing HTTP context threaded explicitly through the
// listing fetcher, extractor, and materializer. It is never global, so
// pipelines with different credentials can coexist.
type Session struct {
	client      *http.Client
	base        *url.URL
	userAgent   string
	endpoints   []LoginEndpoint
	authMarkers []string
}

// NewSession creates a session with a fresh cookie jar and any preset
// cookies from the config.
func NewSession(cfg SessionConfig) (*Session, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	markers := cfg.AuthMarkers
	if len(markers) == 0 {
		markers = []string{"logout", "sign out", "my page"}
	}

	s := &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		base:        base,
		userAgent:   userAgent,
		endpoints:   cfg.Endpoints,
		authMarkers: markers,
	}

	for name, value := range cfg.Cookies {
		s.setCookie(name, value)
	}

	return s, nil
}

// setCookie places a single cookie on the jar, scoped to the base host.
func (s *Session) setCookie(name, value string) {
	s.client.Jar.SetCookies(s.base, []*http.Cookie{{
		Name:  name,
		Value: value,
		Path:  "/",
	}})
}

// SetCookieString injects cookies from a raw "a=1; b=2" header string, the
// way a browser-exported session is usually supplied.
func (s *Session) SetCookieString(raw string) {
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			continue
		}
		s.setCookie(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

// Get performs an authenticated GET and returns the raw response. The caller
// owns the body. Referer may be empty.
func (s *Session) Get(ctx context.Context, rawURL, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	return resp, nil
}

// Fetch retrieves and parses a document, capturing the final resolved URL so
// callers can detect redirects to a gate page.
func (s *Session) Fetch(ctx context.Context, rawURL, referer string) (*Page, error) {
	resp, err := s.Get(ctx, rawURL, referer)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Doc:        doc,
	}, nil
}

// Login attempts a form POST against each configured endpoint in order and
// returns nil on the first one that yields an authenticated session.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if creds.ID == "" || creds.Password == "" {
		return fmt.Errorf("%w: no credentials configured", ErrAuth)
	}
	if len(s.endpoints) == 0 {
		return fmt.Errorf("%w: no login endpoints configured", ErrAuth)
	}

	for _, ep := range s.endpoints {
		form := url.Values{}
		for field, role := range ep.Fields {
			switch role {
			case "id":
				form.Set(field, creds.ID)
			case "password":
				form.Set(field, creds.Password)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(form.Encode()))
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", s.base.String())

		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if s.Authenticated(ctx) {
			return nil
		}
	}

	return fmt.Errorf("%w: all login endpoints failed", ErrAuth)
}

// Authenticated fetches the base page and checks it for a logged-in marker.
// A transport failure counts as not authenticated.
func (s *Session) Authenticated(ctx context.Context) bool {
	resp, err := s.Get(ctx, s.base.String(), "")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}

	page := strings.ToLower(string(body))
	for _, marker := range s.authMarkers {
		if strings.Contains(page, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
