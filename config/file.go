package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pevans/boardwatch"
	"gopkg.in/yaml.v3"
)

// SiteConfig describes the monitored site and its session requirements.
type SiteConfig struct {
	BaseURL        string            `yaml:"base_url"`
	UserAgent      string            `yaml:"user_agent"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Cookie         string            `yaml:"cookie"`  // raw "a=1; b=2" session string
	Cookies        map[string]string `yaml:"cookies"` // individual preset cookies
	AuthMarkers    []string          `yaml:"auth_markers"`
	Login          []LoginForm       `yaml:"login"`
}

// LoginForm is one candidate login endpoint with its field roles.
type LoginForm struct {
	URL    string            `yaml:"url"`
	Fields map[string]string `yaml:"fields"` // form field name -> "id" or "password"
}

// BoardConfig is one monitored board.
type BoardConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Feed string `yaml:"feed"`
}

// ListingConfig overrides listing classification rules. Zero-valued fields
// keep the defaults.
type ListingConfig struct {
	LinkSelector   string   `yaml:"link_selector"`
	TitleSelector  string   `yaml:"title_selector"`
	NoticeSelector string   `yaml:"notice_selector"`
	PostPattern    string   `yaml:"post_pattern"`
	TabPattern     string   `yaml:"tab_pattern"`
	DropParams     []string `yaml:"drop_params"`
}

// ExtractConfig overrides content extraction rules. Zero-valued fields keep
// the defaults.
type ExtractConfig struct {
	ContainerSelectors []string   `yaml:"container_selectors"`
	StripSelectors     []string   `yaml:"strip_selectors"`
	GateURLPattern     string     `yaml:"gate_url_pattern"`
	GateTitleKeywords  []string   `yaml:"gate_title_keywords"`
	GateBodyPairs      [][]string `yaml:"gate_body_pairs"`
	CredentialSelector string     `yaml:"credential_selector"`
	BoilerplatePhrases []string   `yaml:"boilerplate_phrases"`
	SummaryMaxChars    int        `yaml:"summary_max_chars"`
	MinSummaryChars    int        `yaml:"min_summary_chars"`
	LazyAttrs          []string   `yaml:"lazy_attrs"`
	ImageExclude       []string   `yaml:"image_exclude"`
	ImageHosts         []string   `yaml:"image_hosts"`
	ImagePathPattern   string     `yaml:"image_path_pattern"`
	VideoExts          []string   `yaml:"video_exts"`
	EmbedHosts         []string   `yaml:"embed_hosts"`
}

// TelegramConfig identifies the notification endpoint.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// RunConfig holds the coordinator knobs and storage paths.
type RunConfig struct {
	PostsPerRun      int    `yaml:"posts_per_run"`
	PostDelaySeconds int    `yaml:"post_delay_seconds"`
	RequireAuth      bool   `yaml:"require_auth"`
	RecordGated      bool   `yaml:"record_gated"`
	Heartbeat        string `yaml:"heartbeat"`
	LedgerPath       string `yaml:"ledger_path"`
	HistoryPath      string `yaml:"history_path"`
	MediaDir         string `yaml:"media_dir"`
}

// Config is the full file configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Boards   []BoardConfig  `yaml:"boards"`
	Listing  ListingConfig  `yaml:"listing"`
	Extract  ExtractConfig  `yaml:"extract"`
	Telegram TelegramConfig `yaml:"telegram"`
	Run      RunConfig      `yaml:"run"`
}

// Load reads and validates a config file, applying defaults and environment
// overrides (TELEGRAM_TOKEN, TELEGRAM_CHAT_ID, and BOARDWATCH_COOKIE
// override their file counterparts).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("BOARDWATCH_COOKIE"); v != "" {
		c.Site.Cookie = v
	}
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Site.TimeoutSeconds <= 0 {
		c.Site.TimeoutSeconds = 20
	}
	if c.Run.PostsPerRun <= 0 {
		c.Run.PostsPerRun = 5
	}
	if c.Run.PostDelaySeconds <= 0 {
		c.Run.PostDelaySeconds = 2
	}
	if c.Run.LedgerPath == "" {
		c.Run.LedgerPath = "state/seen_keys.txt"
	}
	if c.Run.HistoryPath == "" {
		c.Run.HistoryPath = "state/runs.db"
	}
}

// validate rejects configs the pipeline cannot run with.
func (c *Config) validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("config: site.base_url is required")
	}
	if len(c.Boards) == 0 {
		return fmt.Errorf("config: at least one board is required")
	}
	for i, b := range c.Boards {
		if b.Name == "" {
			return fmt.Errorf("config: boards[%d].name is required", i)
		}
		if b.URL == "" {
			return fmt.Errorf("config: boards[%d].url is required", i)
		}
	}
	return nil
}

// SessionConfig converts the site section into session settings.
func (c *Config) SessionConfig() boardwatch.SessionConfig {
	endpoints := make([]boardwatch.LoginEndpoint, 0, len(c.Site.Login))
	for _, form := range c.Site.Login {
		endpoints = append(endpoints, boardwatch.LoginEndpoint{
			URL:    form.URL,
			Fields: form.Fields,
		})
	}

	return boardwatch.SessionConfig{
		BaseURL:     c.Site.BaseURL,
		UserAgent:   c.Site.UserAgent,
		Timeout:     time.Duration(c.Site.TimeoutSeconds) * time.Second,
		Cookies:     c.Site.Cookies,
		Endpoints:   endpoints,
		AuthMarkers: c.Site.AuthMarkers,
	}
}

// ListingRules merges file overrides onto the default listing rules.
func (c *Config) ListingRules() boardwatch.ListingRules {
	rules := boardwatch.DefaultListingRules()
	if c.Listing.LinkSelector != "" {
		rules.LinkSelector = c.Listing.LinkSelector
	}
	if c.Listing.TitleSelector != "" {
		rules.TitleSelector = c.Listing.TitleSelector
	}
	if c.Listing.NoticeSelector != "" {
		rules.NoticeSelector = c.Listing.NoticeSelector
	}
	if c.Listing.PostPattern != "" {
		rules.PostPattern = c.Listing.PostPattern
	}
	if c.Listing.TabPattern != "" {
		rules.TabPattern = c.Listing.TabPattern
	}
	if len(c.Listing.DropParams) > 0 {
		rules.DropParams = c.Listing.DropParams
	}
	return rules
}

// ExtractRules merges file overrides onto the default extraction rules.
func (c *Config) ExtractRules() boardwatch.ExtractRules {
	rules := boardwatch.DefaultExtractRules()
	if len(c.Extract.ContainerSelectors) > 0 {
		rules.ContainerSelectors = c.Extract.ContainerSelectors
	}
	if len(c.Extract.StripSelectors) > 0 {
		rules.StripSelectors = c.Extract.StripSelectors
	}
	if c.Extract.GateURLPattern != "" {
		rules.GateURLPattern = c.Extract.GateURLPattern
	}
	if len(c.Extract.GateTitleKeywords) > 0 {
		rules.GateTitleKeywords = c.Extract.GateTitleKeywords
	}
	if len(c.Extract.GateBodyPairs) > 0 {
		pairs := make([][2]string, 0, len(c.Extract.GateBodyPairs))
		for _, p := range c.Extract.GateBodyPairs {
			if len(p) == 2 {
				pairs = append(pairs, [2]string{p[0], p[1]})
			}
		}
		rules.GateBodyPairs = pairs
	}
	if c.Extract.CredentialSelector != "" {
		rules.CredentialSelector = c.Extract.CredentialSelector
	}
	if len(c.Extract.BoilerplatePhrases) > 0 {
		rules.BoilerplatePhrases = c.Extract.BoilerplatePhrases
	}
	if c.Extract.SummaryMaxChars > 0 {
		rules.SummaryMaxChars = c.Extract.SummaryMaxChars
	}
	if c.Extract.MinSummaryChars > 0 {
		rules.MinSummaryChars = c.Extract.MinSummaryChars
	}
	if len(c.Extract.LazyAttrs) > 0 {
		rules.LazyAttrs = c.Extract.LazyAttrs
	}
	if len(c.Extract.ImageExclude) > 0 {
		rules.ImageExclude = c.Extract.ImageExclude
	}
	if len(c.Extract.ImageHosts) > 0 {
		rules.ImageHosts = c.Extract.ImageHosts
	}
	if c.Extract.ImagePathPattern != "" {
		rules.ImagePathPattern = c.Extract.ImagePathPattern
	}
	if len(c.Extract.VideoExts) > 0 {
		rules.VideoExts = c.Extract.VideoExts
	}
	if len(c.Extract.EmbedHosts) > 0 {
		rules.EmbedHosts = c.Extract.EmbedHosts
	}
	return rules
}

// BoardList converts the boards section.
func (c *Config) BoardList() []boardwatch.Board {
	boards := make([]boardwatch.Board, 0, len(c.Boards))
	for _, b := range c.Boards {
		boards = append(boards, boardwatch.Board{Name: b.Name, URL: b.URL, Feed: b.Feed})
	}
	return boards
}

// PipelineConfig converts the run section, pulling login credentials from
// the environment (BOARDWATCH_ID / BOARDWATCH_PW).
func (c *Config) PipelineConfig() boardwatch.PipelineConfig {
	return boardwatch.PipelineConfig{
		Boards:      c.BoardList(),
		PostsPerRun: c.Run.PostsPerRun,
		PostDelay:   time.Duration(c.Run.PostDelaySeconds) * time.Second,
		RequireAuth: c.Run.RequireAuth,
		Credentials: boardwatch.Credentials{
			ID:       os.Getenv("BOARDWATCH_ID"),
			Password: os.Getenv("BOARDWATCH_PW"),
		},
		RecordGated: c.Run.RecordGated,
		Heartbeat:   c.Run.Heartbeat,
		MediaDir:    c.Run.MediaDir,
	}
}
