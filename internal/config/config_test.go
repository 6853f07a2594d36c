package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryWriter/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "")
	t.Setenv("DIFY_TIMEOUT", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultDifyBaseURL, cfg.DifyBaseURL)
	assert.Equal(t, 60*time.Second, cfg.DifyTimeout)
	assert.Equal(t, DefaultDifyAppID, cfg.DifyCredential(), "falls back to the default app id")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "sk-test")
	t.Setenv("DIFY_TIMEOUT", "15")
	t.Setenv("DIFY_BASE_URL", "http://localhost:9000/v1/")
	t.Setenv("DEBUG_MODE", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.DifyCredential())
	assert.Equal(t, 15*time.Second, cfg.DifyTimeout)
	assert.Equal(t, "http://localhost:9000/v1", cfg.DifyBaseURL)
	assert.True(t, cfg.DebugMode)
}

func TestEmptyFallbackDisablesCredential(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "")
	t.Setenv("DIFY_FALLBACK_APP_ID", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.DifyCredential())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		t.Setenv("DIFY_TIMEOUT", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("port", func(t *testing.T) {
		t.Setenv("PORT", "http")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("base url", func(t *testing.T) {
		t.Setenv("DIFY_BASE_URL", "not a url")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseAccounts(t *testing.T) {
	accounts, err := ParseAccounts([]byte(`
accounts:
  - username: ms-lee
    password: apple
    role: teacher
  - username: tom
    password_hash: $2a$10$abcdefghijklmnopqrstuu5VFb3X1g3x7cN1qVQ8pOkeUuTzZ3e1W
    role: student
    no_ai: true
`))
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 2)
	assert.Equal(t, models.RoleTeacher, accounts.Accounts[0].Role)
	assert.True(t, accounts.Accounts[1].NoAI)
}

func TestParseAccountsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad role":    "accounts:\n  - {username: a, password: b, role: admin}\n",
		"no password": "accounts:\n  - {username: a, role: student}\n",
		"no username": "accounts:\n  - {password: b, role: student}\n",
		"duplicate":   "accounts:\n  - {username: a, password: b, role: student}\n  - {username: a, password: c, role: student}\n",
		"not yaml":    "accounts: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccounts([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadAccountsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - {username: a, password: b, role: student}\n"), 0644))

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	assert.Equal(t, "a", accounts.Accounts[0].Username)

	_, err = LoadAccounts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
