// internal/models/language.go
package models

// Language 界面语言，重置故事时保持不变
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"

	DefaultLanguage = LanguageEnglish
)

// Valid 只接受 en 与 zh
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageChinese
}

// OrDefault 旧快照中没有语言字段时回退到默认语言
func (l Language) OrDefault() Language {
	if l.Valid() {
		return l
	}
	return DefaultLanguage
}
