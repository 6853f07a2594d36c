// internal/models/identity.go
package models

// Role 用户角色
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid 检查角色是否合法
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Identity 登录后的用户身份，会话期间不可变
type Identity struct {
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	AIEnabled bool   `json:"ai_enabled"`
}

// IsTeacher 是否为教师
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// AuthUser 登录接口返回的用户信息，保持 noAi 字段兼容前端
type AuthUser struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	NoAI     bool   `json:"noAi,omitempty"`
}

// ToAuthUser 转换为登录响应中的用户结构
func (i Identity) ToAuthUser() AuthUser {
	return AuthUser{
		Username: i.Username,
		Role:     i.Role,
		NoAI:     !i.AIEnabled,
	}
}
