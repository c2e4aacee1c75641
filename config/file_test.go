package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boardwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `site:
  base_url: https://forum.example.com
  cookies:
    adult_chk: "1"
  login:
    - url: https://forum.example.com/member/login
      fields:
        user_id: id
        user_pw: password
boards:
  - name: t50
    url: https://forum.example.com/board/t50
  - name: t22
    url: https://forum.example.com/board/t22
    feed: https://forum.example.com/board/t22/feed
telegram:
  token: "123:abc"
  chat_id: "-100777"
run:
  posts_per_run: 3
  require_auth: true
`

// TestLoad_ValidConfig verifies a full config parses with its values
func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://forum.example.com", cfg.Site.BaseURL)
	require.Len(t, cfg.Boards, 2)
	assert.Equal(t, "t50", cfg.Boards[0].Name)
	assert.Equal(t, "https://forum.example.com/board/t22/feed", cfg.Boards[1].Feed)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, 3, cfg.Run.PostsPerRun)
	assert.True(t, cfg.Run.RequireAuth)
}

// TestLoad_Defaults verifies omitted fields get their defaults
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `site:
  base_url: https://forum.example.com
boards:
  - name: t50
    url: https://forum.example.com/board/t50
`))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Site.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Run.PostsPerRun)
	assert.Equal(t, 2, cfg.Run.PostDelaySeconds)
	assert.Equal(t, "state/seen_keys.txt", cfg.Run.LedgerPath)
	assert.Equal(t, "state/runs.db", cfg.Run.HistoryPath)
	assert.False(t, cfg.Run.RequireAuth)
	assert.False(t, cfg.Run.RecordGated)
}

// TestLoad_EnvOverrides verifies environment secrets beat file values
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "env-chat")
	t.Setenv("BOARDWATCH_COOKIE", "sid=env")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "env-chat", cfg.Telegram.ChatID)
	assert.Equal(t, "sid=env", cfg.Site.Cookie)
}

// TestLoad_Validation verifies unusable configs are rejected
func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing base_url", "boards:\n  - name: t50\n    url: https://x.test/b\n"},
		{"no boards", "site:\n  base_url: https://x.test\n"},
		{"board without name", "site:\n  base_url: https://x.test\nboards:\n  - url: https://x.test/b\n"},
		{"board without url", "site:\n  base_url: https://x.test\nboards:\n  - name: t50\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

// TestLoad_MissingFile verifies a missing config file is an error
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// TestSessionConfig verifies the site section converts to session settings
func TestSessionConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, "https://forum.example.com", sc.BaseURL)
	assert.Equal(t, 20*time.Second, sc.Timeout)
	assert.Equal(t, "1", sc.Cookies["adult_chk"])
	require.Len(t, sc.Endpoints, 1)
	assert.Equal(t, "id", sc.Endpoints[0].Fields["user_id"])
}

// TestRuleOverrides verifies file values replace rule defaults while
// omitted fields keep them
func TestRuleOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `site:
  base_url: https://forum.example.com
boards:
  - name: t50
    url: https://forum.example.com/board/t50
listing:
  post_pattern: '/threads/\d+$'
extract:
  summary_max_chars: 500
  gate_body_pairs:
    - [login, account]
`))
	require.NoError(t, err)

	listing := cfg.ListingRules()
	assert.Equal(t, `/threads/\d+$`, listing.PostPattern)
	assert.NotEmpty(t, listing.DropParams, "defaults kept for omitted fields")

	extract := cfg.ExtractRules()
	assert.Equal(t, 500, extract.SummaryMaxChars)
	require.Len(t, extract.GateBodyPairs, 1)
	assert.Equal(t, [2]string{"login", "account"}, extract.GateBodyPairs[0])
	assert.NotEmpty(t, extract.ContainerSelectors)
}

// TestPipelineConfig verifies conversion to pipeline settings with env
// credentials
func TestPipelineConfig(t *testing.T) {
	t.Setenv("BOARDWATCH_ID", "alice")
	t.Setenv("BOARDWATCH_PW", "s3cret")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	pc := cfg.PipelineConfig()
	assert.Len(t, pc.Boards, 2)
	assert.Equal(t, 3, pc.PostsPerRun)
	assert.Equal(t, 2*time.Second, pc.PostDelay)
	assert.True(t, pc.RequireAuth)
	assert.Equal(t, "alice", pc.Credentials.ID)
	assert.Equal(t, "s3cret", pc.Credentials.Password)
}
