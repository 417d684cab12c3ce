package models

import "encoding/json"

// Settings defaults.
const (
	DefaultModel               = "OpenAI/gpt-4-turbo"
	DefaultEmbeddingsModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultExecutionStepsLimit = 12
	DefaultPlanningDepthLimit  = 5
)

// AgentsSettings holds agent execution limits.
type AgentsSettings struct {
	ExecutionStepsLimit int `json:"execution_steps_limit"`
}

// TasksSettings holds task scheduling knobs.
type TasksSettings struct {
	ExecutionConcurrency int `json:"execution_concurrency"`
	PlanningDepthLimit   int `json:"planning_depth_limit"`
}

// EmbeddingsSettings names the embeddings model used by the (external)
// semantic-search collaborator.
type EmbeddingsSettings struct {
	Model string `json:"model"`
}

// Settings is the per-tenant configuration blob, persisted as JSON.
type Settings struct {
	DefaultModel string              `json:"default_model"`
	APIKeys      map[Provider]string `json:"api_keys"`
	Agents       AgentsSettings      `json:"agents"`
	Embeddings   EmbeddingsSettings  `json:"embeddings"`
	Tasks        TasksSettings       `json:"tasks"`
}

// DefaultSettings returns the settings a fresh tenant starts with.
func DefaultSettings() Settings {
	return Settings{
		DefaultModel: DefaultModel,
		APIKeys:      map[Provider]string{},
		Agents:       AgentsSettings{ExecutionStepsLimit: DefaultExecutionStepsLimit},
		Embeddings:   EmbeddingsSettings{Model: DefaultEmbeddingsModel},
		Tasks: TasksSettings{
			ExecutionConcurrency: 1,
			PlanningDepthLimit:   DefaultPlanningDepthLimit,
		},
	}
}

// ParseSettings decodes a settings blob, filling in defaults for absent
// fields.
func ParseSettings(raw []byte) (Settings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, err
	}
	if s.DefaultModel == "" {
		s.DefaultModel = DefaultModel
	}
	if s.APIKeys == nil {
		s.APIKeys = map[Provider]string{}
	}
	if s.Agents.ExecutionStepsLimit <= 0 {
		s.Agents.ExecutionStepsLimit = DefaultExecutionStepsLimit
	}
	if s.Embeddings.Model == "" {
		s.Embeddings.Model = DefaultEmbeddingsModel
	}
	if s.Tasks.ExecutionConcurrency <= 0 {
		s.Tasks.ExecutionConcurrency = 1
	}
	if s.Tasks.PlanningDepthLimit <= 0 {
		s.Tasks.PlanningDepthLimit = DefaultPlanningDepthLimit
	}
	return s, nil
}
