package backend

import "GPTAssistant/internal/session"

// ChatRequest represents the request body for OpenAI-compatible APIs
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []session.Turn `json:"messages"`
}

// ChatResponse represents the response from OpenAI-compatible APIs
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion alternative. Content is a pointer so a null or
// missing content can be told apart from an empty reply.
type Choice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Usage reports token accounting for a completion
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}
