// Package chat drives streaming chat completions: it assembles the message
// history, inserts a placeholder assistant message, streams the model's
// response into it and closes it with a terminal status.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

// ErrFailedToGetCompletion is returned when the stream ends without the
// placeholder message ever leaving the Writing state.
var ErrFailedToGetCompletion = errors.New("failed to get completion")

// CompletionParams customizes one completion round.
type CompletionParams struct {
	// MessagesPre is prepended to the chat history, MessagesPost appended.
	// Neither is persisted.
	MessagesPre  []models.Message
	MessagesPost []models.Message
	// Abilities are offered to the model in addition to the chat agent's
	// curated set, and before it.
	Abilities        []models.Ability
	IsSelfReflection bool
}

// Engine runs completions against a tenant's chats.
type Engine struct {
	store     *repo.Store
	emitter   events.Emitter
	userAgent string
}

// NewEngine builds a completion engine.
func NewEngine(store *repo.Store, emitter events.Emitter, userAgent string) *Engine {
	return &Engine{store: store, emitter: emitter, userAgent: userAgent}
}

// CreateCompletion does the whole completion routine for a chat and returns
// the resulting assistant message.
func (e *Engine) CreateCompletion(
	ctx context.Context,
	tenantID, chatID uuid.UUID,
	model *models.Model,
	apiKey string,
	params CompletionParams,
) (models.Message, error) {
	slog.Debug("Getting chat completion", "chat_id", chatID)

	var message models.Message
	var wireMessages []llm.WireMessage
	var abilities []models.Ability

	err := e.store.WithTx(ctx, func(s *repo.Store) error {
		history, err := s.Messages.ListByChat(ctx, tenantID, chatID)
		if err != nil {
			return err
		}

		messages := make([]models.Message, 0, len(params.MessagesPre)+len(history)+len(params.MessagesPost))
		messages = append(messages, params.MessagesPre...)
		messages = append(messages, history...)
		messages = append(messages, params.MessagesPost...)
		messages = trimToContextWindow(messages, model.ContextLength)

		agentID, err := s.Chats.AgentID(ctx, chatID)
		if err != nil {
			return err
		}
		if agentID == nil {
			return fmt.Errorf("chat %s has no agent", chatID)
		}
		agent, err := s.Agents.Get(ctx, tenantID, *agentID)
		if err != nil {
			return err
		}

		agentAbilities, err := s.Abilities.ListForAgent(ctx, tenantID, agent.ID)
		if err != nil {
			return err
		}
		abilities = append(abilities, params.Abilities...)
		abilities = append(abilities, agentAbilities...)

		wireMessages = make([]llm.WireMessage, 0, len(messages))
		for i := range messages {
			wire, err := llm.WireMessageFrom(&messages[i])
			if err != nil {
				return err
			}
			wireMessages = append(wireMessages, wire)
		}

		message = models.Message{
			TenantID:         tenantID,
			ChatID:           chatID,
			AgentID:          &agent.ID,
			Status:           models.MessageStatusWriting,
			Role:             models.RoleAssistant,
			IsSelfReflection: params.IsSelfReflection,
		}
		return s.Messages.Create(ctx, &message)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("preparing completion: %w", err)
	}

	e.emitter.Emit(ctx, message.TenantID, events.KindMessageCreated, message)

	tools, err := ConstructTools(abilities)
	if err != nil {
		e.failMessage(ctx, &message)
		return message, err
	}

	client := llm.NewClient(apiKey, model.APIURLOrDefault(), e.userAgent)

	if err := e.streamCompletion(ctx, client, model, wireMessages, tools, &message); err != nil {
		return message, err
	}

	if message.Status == models.MessageStatusWriting {
		e.failMessage(ctx, &message)
		return message, ErrFailedToGetCompletion
	}

	return message, nil
}

// trimToContextWindow drops the oldest non-system messages until the
// estimated token count fits the model's context window. Tokens are
// approximated as content length over four. Models without a known context
// length are left untrimmed.
func trimToContextWindow(messages []models.Message, contextLength int) []models.Message {
	if contextLength <= 0 {
		return messages
	}

	estimate := func(m *models.Message) int {
		return len(m.ContentOrEmpty())/4 + len(m.ToolCalls)/4
	}

	total := 0
	for i := range messages {
		total += estimate(&messages[i])
	}

	trimmed := messages
	for total > contextLength {
		dropped := false
		for i := range trimmed {
			if trimmed[i].Role == models.RoleSystem {
				continue
			}
			total -= estimate(&trimmed[i])
			trimmed = append(append([]models.Message{}, trimmed[:i]...), trimmed[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			break
		}
	}
	return trimmed
}

// failMessage closes a message as Failed. Best effort: completion errors
// take precedence over bookkeeping errors.
func (e *Engine) failMessage(ctx context.Context, message *models.Message) {
	updated, err := e.store.Messages.UpdateStatus(ctx, message.TenantID, message.ID, models.MessageStatusFailed)
	if err != nil {
		slog.Error("Failed to fail message", "message_id", message.ID, "error", err)
		message.Status = models.MessageStatusFailed
	} else {
		*message = updated
	}
	e.emitter.Emit(ctx, message.TenantID, events.KindMessageUpdated, *message)
}

// ConstructTools converts abilities into the provider's tool definitions.
// The ability's own description wins over whatever the stored function
// definition carries.
func ConstructTools(abilities []models.Ability) ([]llm.Tool, error) {
	if len(abilities) == 0 {
		return nil, nil
	}

	tools := make([]llm.Tool, 0, len(abilities))
	for i := range abilities {
		var function llm.ToolFunction
		if err := unmarshalFunction(&abilities[i], &function); err != nil {
			return nil, fmt.Errorf("constructing tool for ability %q: %w", abilities[i].Name, err)
		}
		function.Description = abilities[i].Description
		tools = append(tools, llm.Tool{Type: "function", Function: function})
	}
	return tools, nil
}

func unmarshalFunction(ability *models.Ability, function *llm.ToolFunction) error {
	if len(ability.ParametersJSON) == 0 {
		return errors.New("ability has no function definition")
	}
	return json.Unmarshal(ability.ParametersJSON, function)
}
