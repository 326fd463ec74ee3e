package models

// AskRequest is the body of an ask request. SessionID is accepted for
// forward compatibility but no conversational state is kept across calls.
type AskRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse carries the model's answer and the chunk texts that were
// packed into the prompt, in descending relevance order.
type AskResponse struct {
	Message   string   `json:"message"`
	SessionID string   `json:"session_id"`
	Context   []string `json:"context"`
}
