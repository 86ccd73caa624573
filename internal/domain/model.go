package domain

type Persona string

const (
	PersonaFormal Persona = "formal"
	PersonaCasual Persona = "casual"
)

// ModelInfo describes a selectable completion model and the persona used
// as the system instruction for chat turns on it.
type ModelInfo struct {
	ID          string  `json:"id" yaml:"id"`
	Label       string  `json:"label" yaml:"label"`
	Persona     Persona `json:"persona" yaml:"persona"`
	Instruction string  `json:"-" yaml:"instruction"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	EssayTokens int     `json:"-" yaml:"essay_tokens"`
}

type ModelsResponse struct {
	Models   []ModelInfo `json:"models"`
	Selected string      `json:"selected"`
}
