// internal/models/character.go
package models

// Character 学生创建的故事主角
type Character struct {
	Name        string   `json:"name"`
	Age         int      `json:"age"`
	Traits      []string `json:"traits"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url,omitempty"`
	Species     string   `json:"species,omitempty"`
}
