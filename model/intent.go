package model

import "fmt"

// IntentType is the classified purpose of a turn.
type IntentType int

const (
	IntentOther IntentType = iota
	IntentEditDocument
	IntentRewriteDocument
	IntentGenerateDocument
)

// String returns the label used in prompts and logs.
func (i IntentType) String() string {
	switch i {
	case IntentEditDocument:
		return "edit_document"
	case IntentRewriteDocument:
		return "rewrite_document"
	case IntentGenerateDocument:
		return "generate_document"
	case IntentOther:
		return "other"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// SkillKind is the closed set of skill pipelines.
type SkillKind int

const (
	SkillQA SkillKind = iota
	SkillEdit
	SkillRewrite
	SkillGenerate

	skillKindCount
)

// SkillKinds lists every skill kind.
func SkillKinds() []SkillKind {
	kinds := make([]SkillKind, 0, skillKindCount)
	for k := SkillKind(0); k < skillKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the skill name carried in SkillMeta.
func (k SkillKind) String() string {
	switch k {
	case SkillQA:
		return "commonQnA"
	case SkillEdit:
		return "editDoc"
	case SkillRewrite:
		return "rewriteDoc"
	case SkillGenerate:
		return "generateDoc"
	default:
		return fmt.Sprintf("skill(%d)", int(k))
	}
}

// ParseSkillKind resolves a skill name.
func ParseSkillKind(name string) (SkillKind, bool) {
	for _, k := range SkillKinds() {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Skill returns the pipeline that serves this intent.
func (i IntentType) Skill() SkillKind {
	switch i {
	case IntentEditDocument:
		return SkillEdit
	case IntentRewriteDocument:
		return SkillRewrite
	case IntentGenerateDocument:
		return SkillGenerate
	default:
		return SkillQA
	}
}
