// internal/models/story.go
package models

// StructureType 故事结构类型
type StructureType string

const (
	StructureFreytag  StructureType = "freytag"  // 弗赖塔格金字塔
	StructureThreeAct StructureType = "threeAct" // 三幕式
	StructureFichtean StructureType = "fichtean" // 费希特曲线
)

// Valid 检查结构类型是否为已知类型
func (t StructureType) Valid() bool {
	switch t {
	case StructureFreytag, StructureThreeAct, StructureFichtean:
		return true
	default:
		return false
	}
}

// Plot 情节要素
type Plot struct {
	Setting  string `json:"setting"`  // 故事背景
	Conflict string `json:"conflict"` // 核心冲突
	Goal     string `json:"goal"`     // 角色目标
}

// Structure 学生选定的故事结构及提纲
type Structure struct {
	Type     StructureType `json:"type"`
	Outline  []string      `json:"outline"`
	ImageURL string        `json:"image_url,omitempty"`
}

// StoryState 写作流程中已收集的全部内容
// 字段按 character → plot → structure → story 的顺序填充，顺序由状态机保证
type StoryState struct {
	Character *Character `json:"character"`
	Plot      *Plot      `json:"plot"`
	Structure *Structure `json:"structure"`
	Story     string     `json:"story"`
}

// NewStoryState 返回空的故事状态
func NewStoryState() StoryState {
	return StoryState{}
}

// IsEmpty 判断是否为初始空状态
func (s StoryState) IsEmpty() bool {
	return s.Character == nil && s.Plot == nil && s.Structure == nil && s.Story == ""
}

// Clone 深拷贝，避免调用方修改会话内部状态
func (s StoryState) Clone() StoryState {
	out := StoryState{Story: s.Story}
	if s.Character != nil {
		c := *s.Character
		c.Traits = append([]string(nil), s.Character.Traits...)
		out.Character = &c
	}
	if s.Plot != nil {
		p := *s.Plot
		out.Plot = &p
	}
	if s.Structure != nil {
		st := *s.Structure
		st.Outline = append([]string(nil), s.Structure.Outline...)
		out.Structure = &st
	}
	return out
}
