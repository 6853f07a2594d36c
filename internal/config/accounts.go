// internal/config/accounts.go
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/StoryWriter/internal/models"
)

// Account 账号文件中的一条记录
type Account struct {
	Username     string      `yaml:"username" validate:"required"`
	Password     string      `yaml:"password,omitempty" validate:"required_without=PasswordHash"`
	PasswordHash string      `yaml:"password_hash,omitempty"`
	Role         models.Role `yaml:"role" validate:"required,oneof=teacher student"`
	NoAI         bool        `yaml:"no_ai,omitempty"`
}

// Accounts 账号文件结构
type Accounts struct {
	Accounts []Account `yaml:"accounts" validate:"dive"`
}

// LoadAccounts 读取并校验 YAML 账号文件
func LoadAccounts(path string) (*Accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}
	return ParseAccounts(data)
}

// ParseAccounts 解析账号 YAML
func ParseAccounts(data []byte) (*Accounts, error) {
	var accounts Accounts
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parsing accounts file: %w", err)
	}

	if err := validator.New().Struct(&accounts); err != nil {
		return nil, fmt.Errorf("accounts validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(accounts.Accounts))
	for _, a := range accounts.Accounts {
		if _, dup := seen[a.Username]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.Username)
		}
		seen[a.Username] = struct{}{}
	}

	return &accounts, nil
}
