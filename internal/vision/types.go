// Package vision provides a client for the external image captioning
// service.
package vision

import "time"

// Config holds configuration for the vision client
type Config struct {
	APIKey   string        `json:"api_key"`
	BaseURL  string        `json:"base_url"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://generativelanguage.googleapis.com",
		Model:    "gemini-2.5-flash",
		Timeout:  60 * time.Second,
		CacheTTL: 24 * time.Hour,
	}
}

// generateRequest is the captioning request payload.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded image bytes
}

type generationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

// generateResponse is the captioning response envelope. The structured
// annotation arrives as JSON text inside the first candidate part.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// apiError is the service's error response body
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
