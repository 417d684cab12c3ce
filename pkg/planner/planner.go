// Package planner turns a root task into an execution plan: either a direct
// assignment to one agent or a tree of sub-tasks, planned recursively.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

const prompt = `You are a project manager with the objective of orchestrating task execution using your team effectively.

## Planning Guidelines

1. Ensure each task is a discrete, manageable unit of work. Avoid splitting broad concepts like "research" and "understanding", "writing" and "executing" scripts or "running a benchmark" and "analyzing results" into separate sub-tasks.
2. Assign each task to only one agent.
3. A task can have multiple sub-tasks.
4. Parent tasks have visibility over the outcomes of their sub-tasks.
5. Sub-tasks have visibility over the outcomes of their sibling tasks.
6. Tasks should be executed in a sequential manner.

## Examples

1. Simple tasks like writing a straight-forward script should not be divided into sub-tasks.
2. Complex tasks, such as those requiring internet data retrieval and script writing, should be split into two sub-tasks: data gathering and script development.
3. Straightforward queries like "tell me about Ruby on Rails" do not require planning. Avoid unnecessary task creation for such direct questions.
4. Try to keep the number of sub-tasks to a minimum to avoid task fragmentation.
5. Keep the number of nesting levels to a minimum.

## Additional Notes

1. Use the web browser sparingly to minimize user billing. Avoid researching well-known topics.
2. Eliminate "review" steps from tasks; the user will review the final results. Focus on creating meaningful, actionable tasks.
3. Plan at a single level of depth only.
4. Do not include tasks for delivering results like "save a file" or "provide a URL."
5. Keep task titles succinct and to the point.
6. When planning, you can safely assume that the working environment is set up correctly.
7. Task summary should have all the relevant information for the agent to complete the task, but avoid unnecessary details.

## Response Format

Approach each task methodically and devise a plan to achieve it. Respond with concise task titles and assigned agents only, omitting any additional explanations.`

// Planner errors.
var (
	ErrPlanningUnavailable = errors.New("planning is not available for the task status")
	ErrNoToolCallReceived  = errors.New("no tool call received from LLM")
	ErrNonAssistantMessage = errors.New("non-assistant message received from LLM")
	ErrEmptyPlan           = errors.New("empty plan received from LLM")
)

// ExecutionPlanTask is one planned sub-task.
type ExecutionPlanTask struct {
	Title   string    `json:"title"`
	Summary string    `json:"summary"`
	AgentID uuid.UUID `json:"agent_id"`
}

// ExecutionPlan is the model's answer to a planning request.
type ExecutionPlan struct {
	Tasks []ExecutionPlanTask `json:"tasks"`
}

type assignToAgentArgs struct {
	AgentID uuid.UUID `json:"agent_id"`
}

// Planner plans task execution for one tenant.
type Planner struct {
	store     *repo.Store
	emitter   events.Emitter
	userAgent string
}

// New builds a planner.
func New(store *repo.Store, emitter events.Emitter, userAgent string) *Planner {
	return &Planner{store: store, emitter: emitter, userAgent: userAgent}
}

// Plan asks the model for an execution plan and applies it: a one-task plan
// assigns the agent in place, a longer plan creates sub-tasks and recurses
// into each, stopping at the configured depth limit.
func (p *Planner) Plan(ctx context.Context, task *models.Task) error {
	if task.Status == models.TaskStatusToDo || task.Status == models.TaskStatusInProgress {
		return fmt.Errorf("%w: %s", ErrPlanningUnavailable, task.Status)
	}

	slog.Info("Planning task", "task_id", task.ID)

	settings, err := p.store.Settings.Get(ctx, task.TenantID)
	if err != nil {
		return err
	}

	agents, err := p.store.Agents.ListEnabled(ctx, task.TenantID)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	messages := buildMessages(task, agents)

	tools, err := chat.ConstructTools(plannerAbilities())
	if err != nil {
		return err
	}

	model, err := p.store.Models.GetByFullName(ctx, task.TenantID, settings.DefaultModel)
	if err != nil {
		return fmt.Errorf("loading model %q: %w", settings.DefaultModel, err)
	}
	apiKey, ok := settings.APIKeys[model.Provider]
	if !ok {
		return fmt.Errorf("no api key configured for provider %s", model.Provider)
	}

	client := llm.NewClient(apiKey, model.APIURLOrDefault(), p.userAgent)
	response, err := client.CreateChatCompletion(ctx, llm.CompletionRequest{
		Model:    model.Name,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return fmt.Errorf("creating chat completion: %w", err)
	}

	plan, err := planFromResponse(&response, task)
	if err != nil {
		return err
	}
	if len(plan.Tasks) == 0 {
		return ErrEmptyPlan
	}

	if len(plan.Tasks) == 1 {
		task.AgentID = plan.Tasks[0].AgentID
		if err := p.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		p.emitter.Emit(ctx, task.TenantID, events.KindTaskUpdated, *task)
		return nil
	}

	if task.AncestryLevel >= settings.Tasks.PlanningDepthLimit {
		slog.Info("Planning depth limit reached, not planning sub-tasks",
			"limit", settings.Tasks.PlanningDepthLimit,
			"task_id", task.ID, "title", task.Title, "ancestry_level", task.AncestryLevel)
		return nil
	}

	for _, subTask := range plan.Tasks {
		ancestry := task.ChildrenAncestry()
		child := models.Task{
			TenantID: task.TenantID,
			UserID:   task.UserID,
			AgentID:  subTask.AgentID,
			Title:    subTask.Title,
			Summary:  subTask.Summary,
			Status:   models.TaskStatusDraft,
			Ancestry: &ancestry,
		}
		if err := p.store.Tasks.Create(ctx, &child); err != nil {
			return err
		}
		p.emitter.Emit(ctx, child.TenantID, events.KindTaskCreated, child)

		if err := p.Plan(ctx, &child); err != nil {
			return err
		}
	}
	return nil
}

// planFromResponse extracts the plan from the model's tool calls. A direct
// assignment collapses into a single-task plan for the task itself.
func planFromResponse(response *llm.Completion, task *models.Task) (ExecutionPlan, error) {
	if len(response.Choices) == 0 {
		return ExecutionPlan{}, ErrNonAssistantMessage
	}
	message := response.Choices[0].Message
	if message.Role != "assistant" {
		return ExecutionPlan{}, ErrNonAssistantMessage
	}

	toolCalls := message.ToolCallList()
	var plan *ExecutionPlan

	for _, toolCall := range toolCalls {
		switch toolCall.Function.Name {
		case "sfai_plan_task_execution":
			var parsed ExecutionPlan
			if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &parsed); err != nil {
				return ExecutionPlan{}, fmt.Errorf("parsing plan: %w", err)
			}
			plan = &parsed
		case "sfai_assign_to_agent":
			var args assignToAgentArgs
			if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
				return ExecutionPlan{}, fmt.Errorf("parsing assignment arguments: %w", err)
			}
			plan = &ExecutionPlan{Tasks: []ExecutionPlanTask{{
				Title:   task.Title,
				Summary: task.Summary,
				AgentID: args.AgentID,
			}}}
		}
	}

	if plan == nil {
		return ExecutionPlan{}, ErrNoToolCallReceived
	}
	return *plan, nil
}

// buildMessages constructs the planning conversation.
func buildMessages(task *models.Task, agents []models.Agent) []llm.WireMessage {
	lines := make([]string, 0, len(agents))
	for _, agent := range agents {
		lines = append(lines, fmt.Sprintf("- ID: %s. %s: %s", agent.ID, agent.Name, agent.Description))
	}
	agentsList := "No agents available"
	if len(lines) > 0 {
		agentsList = strings.Join(lines, "\n")
	}

	summary := ""
	if task.Summary != "" {
		summary = "\n\n" + task.Summary
	}

	system := prompt
	user := fmt.Sprintf(
		"## Available Agents\n\n%s\n\n## Task: %s%s\n\n## Attachments\n\nNo attachments provided.",
		agentsList, task.Title, summary)

	return []llm.WireMessage{
		{Role: "system", Content: &system},
		{Role: "user", Content: &user},
	}
}

func plannerAbilities() []models.Ability {
	return []models.Ability{
		models.AbilityForFn("No plan required. Assign task to an agent", `{
			"name": "sfai_assign_to_agent",
			"parameters": {
				"type": "object",
				"properties": {
					"agent_id": {
						"type": "string",
						"description": "ID of the agent to assign the task to"
					}
				}
			}
		}`),
		models.AbilityForFn("Plan task execution", `{
			"name": "sfai_plan_task_execution",
			"parameters": {
				"type": "object",
				"properties": {
					"tasks": {
						"type": "array",
						"description": "List of planned sub-tasks",
						"items": {
							"type": "object",
							"properties": {
								"title": {
									"type": "string",
									"description": "Task title"
								},
								"summary": {
									"type": "string",
									"description": "Task summary"
								},
								"agent_id": {
									"type": "string",
									"description": "ID of the agent to assign the task to"
								}
							}
						}
					}
				}
			}
		}`),
	}
}
