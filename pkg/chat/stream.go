package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
)

const (
	chunkSeparator = "\n\n"
	doneChunk      = "data: [DONE]"
	chunkPrefix    = "data: "
)

// Chunk errors that signal "probably split mid-frame": the frame goes back
// to the remainder and is retried once the next network read arrives.
var (
	errNoChunkPrefix = errors.New("chunk has no data prefix")
	errChunkDecode   = errors.New("chunk failed to decode")
)

// streamCompletion reads the SSE stream and folds every frame into the
// placeholder message. Each frame is broadcast to listeners; the message is
// persisted once, when the stream signals completion.
func (e *Engine) streamCompletion(
	ctx context.Context,
	client *llm.Client,
	model *models.Model,
	messages []llm.WireMessage,
	tools []llm.Tool,
	message *models.Message,
) error {
	body, err := client.CreateChatCompletionStream(ctx, llm.CompletionRequest{
		Model:    model.Name,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		e.failMessage(ctx, message)
		return fmt.Errorf("creating chat completion: %w", err)
	}
	defer body.Close()

	var chunkRemainder string
	buf := make([]byte, 4096)

	for {
		n, readErr := body.Read(buf)
		if n == 0 && readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			e.failMessage(ctx, message)
			return fmt.Errorf("reading completion stream: %w", readErr)
		}

		// Frames can arrive split across reads, or several per read. The
		// remainder carries any incomplete tail into the next iteration.
		chunkRemainder += string(buf[:n])
		raw := chunkRemainder
		chunkRemainder = ""

		for _, chunk := range strings.Split(raw, chunkSeparator) {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}

			if chunk == doneChunk {
				if err := e.finalizeMessage(ctx, message); err != nil {
					e.failMessage(ctx, message)
					return err
				}
			} else if err := applyCompletionChunk(message, chunk); err != nil {
				if errors.Is(err, errNoChunkPrefix) || errors.Is(err, errChunkDecode) {
					// Might be an incomplete frame; retry with more bytes.
					slog.Debug("Error parsing chunk, might be incomplete, pushing to remainder")
					chunkRemainder = chunk
				} else {
					e.failMessage(ctx, message)
					return err
				}
			}

			e.emitter.Emit(ctx, message.TenantID, events.KindMessageUpdated, *message)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			e.failMessage(ctx, message)
			return fmt.Errorf("reading completion stream: %w", readErr)
		}
	}
}

// finalizeMessage closes the message once the stream signals completion:
// tool calls get their arguments cleaned and the status reflects whether the
// model asked for a call.
func (e *Engine) finalizeMessage(ctx context.Context, message *models.Message) error {
	toolCalls := message.ToolCallList()

	if len(toolCalls) == 0 {
		message.Status = models.MessageStatusCompleted
	} else {
		message.Status = models.MessageStatusWaitingForToolCall
		// Models sometimes emit raw newlines inside JSON string values,
		// which breaks downstream decoding.
		for i := range toolCalls {
			toolCalls[i].Function.Arguments = cleanupJSONStringNewlines(toolCalls[i].Function.Arguments)
		}
		if err := message.SetToolCalls(toolCalls); err != nil {
			return fmt.Errorf("encoding cleaned tool calls: %w", err)
		}
	}

	if err := e.store.Messages.Update(ctx, message); err != nil {
		return fmt.Errorf("updating assistant message: %w", err)
	}
	return nil
}

// applyCompletionChunk folds one SSE frame into the message: content deltas
// append, tool call fragments accrete onto the last call or open a new one
// when the frame carries an id.
func applyCompletionChunk(message *models.Message, chunk string) error {
	payload, ok := strings.CutPrefix(strings.TrimSpace(chunk), chunkPrefix)
	if !ok {
		return errNoChunkPrefix
	}

	var completion llm.CompletionChunk
	if err := json.Unmarshal([]byte(payload), &completion); err != nil {
		return fmt.Errorf("%w: %v", errChunkDecode, err)
	}
	if len(completion.Choices) == 0 {
		return nil
	}
	delta := completion.Choices[0].Delta

	if delta.Content != nil {
		content := message.ContentOrEmpty() + *delta.Content
		message.Content = &content
	}

	if len(delta.ToolCalls) == 0 {
		return nil
	}
	fragment := delta.ToolCalls[0]

	toolCalls := message.ToolCallList()
	var current *models.ToolCall
	if len(toolCalls) > 0 {
		current = &toolCalls[len(toolCalls)-1]
	}

	// A fragment with an id opens a new call; otherwise it extends the
	// current one.
	if current == nil || fragment.ID != nil {
		current = &models.ToolCall{Type: "function"}
	}
	if fragment.ID != nil {
		current.ID += *fragment.ID
	}
	if fragment.Function != nil {
		if fragment.Function.Name != nil {
			current.Function.Name += *fragment.Function.Name
		}
		if fragment.Function.Arguments != nil {
			current.Function.Arguments += *fragment.Function.Arguments
		}
	}

	if len(toolCalls) == 0 {
		toolCalls = []models.ToolCall{*current}
	} else {
		if current.ID == toolCalls[len(toolCalls)-1].ID {
			toolCalls = toolCalls[:len(toolCalls)-1]
		}
		toolCalls = append(toolCalls, *current)
	}

	if err := message.SetToolCalls(toolCalls); err != nil {
		return fmt.Errorf("encoding tool calls: %w", err)
	}
	return nil
}

// cleanupJSONStringNewlines escapes raw newlines inside JSON string values
// and drops newlines between tokens. Keys and values are otherwise left
// untouched; the function is idempotent.
func cleanupJSONStringNewlines(jsonStr string) string {
	var b strings.Builder
	b.Grow(len(jsonStr))
	inQuotes := false
	lastChar := ' '

	for _, c := range jsonStr {
		if c == '"' && lastChar != '\\' {
			inQuotes = !inQuotes
		}

		if c == '\n' {
			if inQuotes {
				b.WriteString("\\n")
				lastChar = c
			}
			continue
		}

		b.WriteRune(c)
		lastChar = c
	}

	return strings.TrimSpace(b.String())
}
