package models

// GenerateRequest is the provider-neutral text generation request the
// extraction pipeline sends to an LLM. Extraction and classification only
// ever need text in and text out, so the request is deliberately flat: a
// system instruction, ordered conversation turns, and a flag asking the
// provider for a JSON-only answer where the API supports enforcing it.
type GenerateRequest struct {
	System   string `json:"system,omitempty"`
	Messages []Turn `json:"messages"`
	JSONMode bool   `json:"json_mode,omitempty"`
}

// GenerateResponse carries the model's text answer.
type GenerateResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}
