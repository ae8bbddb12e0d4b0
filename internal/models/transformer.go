package models

// TransformerSource records which tier produced a TransformerConfig.
type TransformerSource string

const (
	TransformerTenant  TransformerSource = "tenant"
	TransformerDefault TransformerSource = "default"
)

// TransformerConfig governs how one document type is synthesized.
type TransformerConfig struct {
	Prompt      string            `json:"prompt"`
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Source      TransformerSource `json:"source"`
}

// DocumentSchema is the global definition of a document type.
type DocumentSchema struct {
	DocumentType    string `json:"document_type"`
	Name            string `json:"name"`
	SynthesisPrompt string `json:"synthesis_prompt"`
}
