package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Agent is an LLM-driven persona with a system prompt and a curated set of
// abilities.
type Agent struct {
	ID                       uuid.UUID `json:"id"`
	TenantID                 uuid.UUID `json:"tenant_id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	SystemMessage            string    `json:"system_message"`
	IsEnabled                bool      `json:"is_enabled"`
	IsCodeInterpreterEnabled bool      `json:"is_code_interpreter_enabled"`
	IsWebBrowserEnabled      bool      `json:"is_web_browser_enabled"`
	ExecutionStepsLimit      *int      `json:"execution_steps_limit,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Ability is a named callable a user can expose to agents. ParametersJSON
// is a JSON-Schema-shaped object describing the function signature, in the
// OpenAI function format: {"name": ..., "description": ..., "parameters": {...}}.
type Ability struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Code           string          `json:"code"`
	ParametersJSON json.RawMessage `json:"parameters_json"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AbilityForFn constructs a virtual ability for an internal function. Used
// for the built-in control verbs that are never persisted.
func AbilityForFn(description string, parametersJSON string) Ability {
	return Ability{
		Description:    description,
		ParametersJSON: json.RawMessage(parametersJSON),
	}
}
