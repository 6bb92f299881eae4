package shared

import "encoding/json"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type InferenceBody struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type Usage struct {
	PromptTokens     uint64 `json:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens"`
	TotalTokens      uint64 `json:"total_tokens"`
}

// AnalyzeRequest is the body of POST /analyze. Question is left untyped so a
// non-string value can be rejected as invalid input rather than as bad JSON
type AnalyzeRequest struct {
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Question any             `json:"question"`
}

type ResultEnvelope struct {
	Result string `json:"result"`
}

type ErrorEnvelope struct {
	Error string `json:"error"`
}

type CallerMetadata struct {
	CallerID string `json:"caller_id"`
	Email    string `json:"email,omitempty"`
	APIKey   string `json:"-"`
}
