package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Corphon/StoryWriter/internal/auth"
	"github.com/Corphon/StoryWriter/internal/config"
	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
)

func testAccounts(t *testing.T) *config.Accounts {
	t.Helper()
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	return &config.Accounts{Accounts: []config.Account{
		{Username: "ms-lee", PasswordHash: hash, Role: models.RoleTeacher},
		{Username: "tom", Password: "pw", Role: models.RoleStudent},
		{Username: "ann", Password: "pw", Role: models.RoleStudent, NoAI: true},
	}}
}

func TestAuthenticate(t *testing.T) {
	s := NewAuthService(testAccounts(t), zaptest.NewLogger(t))

	id, err := s.Authenticate("ms-lee", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{Username: "ms-lee", Role: models.RoleTeacher, AIEnabled: true}, id)

	id, err = s.Authenticate("  ann ", "pw")
	require.NoError(t, err)
	assert.False(t, id.AIEnabled)
	assert.Equal(t, models.AuthUser{Username: "ann", Role: models.RoleStudent, NoAI: true}, id.ToAuthUser())
}

func TestAuthenticateRejects(t *testing.T) {
	s := NewAuthService(testAccounts(t), zaptest.NewLogger(t))

	cases := []struct {
		name     string
		user     string
		pass     string
		validate bool
	}{
		{"empty username", "", "pw", true},
		{"blank username", "   ", "pw", true},
		{"empty password", "tom", "", true},
		{"unknown user", "bob", "pw", false},
		{"wrong password", "tom", "nope", false},
		{"wrong hash password", "ms-lee", "pw", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Authenticate(tc.user, tc.pass)
			require.Error(t, err)
			if tc.validate {
				assert.True(t, apperrors.IsValidationError(err))
			} else {
				assert.True(t, apperrors.IsUnauthorizedError(err))
				assert.Contains(t, err.Error(), ErrInvalidCredentials)
			}
		})
	}
}

func TestAuthServiceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - username: tom
    password: pw
    role: student
`), 0600))

	s, err := NewAuthServiceFromFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tom"}, s.Students())

	_, err = NewAuthServiceFromFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.True(t, apperrors.IsConfigurationError(err))
}
