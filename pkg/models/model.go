package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an LLM vendor.
type Provider string

// Known providers.
const (
	ProviderOpenAI Provider = "OpenAI"
	ProviderGroq   Provider = "Groq"
)

// Provider default API base URLs.
const (
	OpenAIAPIURL = "https://api.openai.com/v1/"
	GroqAPIURL   = "https://api.groq.com/openai/v1/"
)

// Model describes an LLM available to a tenant.
type Model struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Provider        Provider  `json:"provider"`
	Name            string    `json:"name"`
	ContextLength   int       `json:"context_length"`
	MaxTokens       int       `json:"max_tokens"`
	TextIn          bool      `json:"text_in"`
	TextOut         bool      `json:"text_out"`
	ImageIn         bool      `json:"image_in"`
	ImageOut        bool      `json:"image_out"`
	AudioIn         bool      `json:"audio_in"`
	AudioOut        bool      `json:"audio_out"`
	FunctionCalling bool      `json:"function_calling"`
	APIURL          *string   `json:"api_url,omitempty"`
	APIKey          *string   `json:"api_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// APIURLOrDefault returns the model's API base URL, falling back to the
// provider default.
func (m *Model) APIURLOrDefault() string {
	if m.APIURL != nil && *m.APIURL != "" {
		return *m.APIURL
	}
	switch m.Provider {
	case ProviderGroq:
		return GroqAPIURL
	default:
		return OpenAIAPIURL
	}
}

// FullName returns the "Provider/name" form used by settings.default_model.
func (m *Model) FullName() string {
	return string(m.Provider) + "/" + m.Name
}
