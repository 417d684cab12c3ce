package browser

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/sandbox"
)

//go:embed templates/*.md.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.md.tmpl"))

// startPage is where every browsing session begins.
const startPage = "https://google.com"

// Runner drives browsing sessions on demand, one container per session.
type Runner struct {
	manager   *sandbox.Manager
	userAgent string
}

// NewRunner builds a browsing runner over the sandbox manager.
func NewRunner(manager *sandbox.Manager, userAgent string) *Runner {
	return &Runner{manager: manager, userAgent: userAgent}
}

// Browse opens a browser, works toward the objective and returns the notebook
// contents, or a description of why the objective could not be reached.
func (r *Runner) Browse(
	ctx context.Context,
	objective, workdir string,
	model *models.Model,
	apiKey string,
) (string, error) {
	b, err := Connect(ctx, r.manager, workdir)
	if err != nil {
		return "", fmt.Errorf("connecting browser: %w", err)
	}
	defer b.Close(context.WithoutCancel(ctx))

	if err := b.Goto(ctx, startPage); err != nil {
		return "", err
	}

	s := &session{
		browser:   b,
		client:    llm.NewClient(apiKey, model.APIURLOrDefault(), r.userAgent),
		modelName: model.Name,
		objective: objective,
		active:    true,
	}
	return s.perform(ctx)
}

// session is one browsing dialog. The accumulated messages hold only the
// exchange since the last navigation; everything worth keeping across pages
// lives in the notebook.
type session struct {
	browser   *Browser
	client    *llm.Client
	modelName string
	objective string

	notebook string
	history  []string
	messages []llm.WireMessage
	active   bool
	failure  string
}

// perform loops viewport rounds until a self-reflection settles the session.
func (s *session) perform(ctx context.Context) (string, error) {
	for s.active {
		wire, err := s.buildMessages(ctx)
		if err != nil {
			return "", err
		}

		completion, err := s.client.CreateChatCompletion(ctx, llm.CompletionRequest{
			Model:    s.modelName,
			Messages: wire,
			Tools:    browsingTools(),
		})
		if err != nil {
			return "", fmt.Errorf("browsing completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("empty browsing completion")
		}
		reply := completion.Choices[0].Message
		s.messages = append(s.messages, reply)

		if err := s.callTools(ctx, reply.ToolCallList()); err != nil {
			return "", err
		}

		if reply.Content != nil && *reply.Content != "" {
			if err := s.selfReflect(ctx, wire, reply); err != nil {
				return "", err
			}
		}
	}

	if s.failure != "" {
		return "Failed to achieve the objective: " + s.failure, nil
	}
	if s.notebook == "" {
		return "The objective produced no findings", nil
	}
	return s.notebook, nil
}

// buildMessages renders the system and viewport messages and appends the
// exchange accumulated on the current page.
func (s *session) buildMessages(ctx context.Context) ([]llm.WireMessage, error) {
	system, err := renderBrowserTemplate("system_message.md.tmpl", map[string]any{
		"Objective": s.objective,
		"Notebook":  s.notebook,
	})
	if err != nil {
		return nil, err
	}

	currentURL, err := s.browser.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	scrollPosition, err := s.browser.ScrollPosition(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := s.browser.ListViewportElements(ctx)
	if err != nil {
		return nil, err
	}
	elementsJSON, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding viewport elements: %w", err)
	}

	viewport, err := renderBrowserTemplate("viewport_message.md.tmpl", map[string]any{
		"CurrentURL":     currentURL,
		"ScrollPosition": scrollPosition,
		"Elements":       string(elementsJSON),
		"History":        s.history,
	})
	if err != nil {
		return nil, err
	}

	wire := make([]llm.WireMessage, 0, 2+len(s.messages))
	wire = append(wire,
		llm.WireMessage{Role: "system", Content: &system},
		llm.WireMessage{Role: "user", Content: &viewport},
	)
	wire = append(wire, s.messages...)
	return wire, nil
}

// callTools applies the reply's browsing tool calls to the page. Navigation
// discards the accumulated page exchange.
func (s *session) callTools(ctx context.Context, calls []models.ToolCall) error {
	for _, call := range calls {
		switch call.Function.Name {
		case "scroll_down":
			s.messages = nil
			if err := s.browser.ScrollDown(ctx); err != nil {
				return err
			}
			if _, err := s.browser.SaveScreenshot(ctx); err != nil {
				return err
			}

		case "goto":
			var args struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("parsing goto arguments: %w", err)
			}
			s.messages = nil
			s.history = append(s.history, args.URL)
			if err := s.browser.Goto(ctx, args.URL); err != nil {
				return err
			}
			if _, err := s.browser.SaveScreenshot(ctx); err != nil {
				return err
			}

		case "click":
			var args struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("parsing click arguments: %w", err)
			}
			before, err := s.browser.CurrentURL(ctx)
			if err != nil {
				return err
			}
			if err := s.browser.Click(ctx, args.ID); err != nil {
				return err
			}
			if _, err := s.browser.SaveScreenshot(ctx); err != nil {
				return err
			}
			after, err := s.browser.CurrentURL(ctx)
			if err != nil {
				return err
			}
			if after != before {
				// The click navigated: the page exchange is stale.
				s.messages = nil
				s.history = append(s.history, before)
			} else {
				s.pushToolOutput(call.ID, "Clicked")
			}

		case "send_keys":
			var args struct {
				ID   int64  `json:"id"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("parsing send_keys arguments: %w", err)
			}
			if err := s.browser.SendKeys(ctx, args.ID, args.Text); err != nil {
				return err
			}
			s.pushToolOutput(call.ID, "Keys sent")

		case "append_notebook":
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("parsing append_notebook arguments: %w", err)
			}
			currentURL, err := s.browser.CurrentURL(ctx)
			if err != nil {
				return err
			}
			s.notebook += "\n\n---\n\n" + currentURL + "\n\n" + args.Text
			s.pushToolOutput(call.ID, "Appended to notebook")

		case "clear_notebook":
			s.notebook = ""
			s.pushToolOutput(call.ID, "Notebook cleared")

		default:
			return fmt.Errorf("unknown browsing tool %q", call.Function.Name)
		}
	}
	return nil
}

// selfReflect asks the model whether the session is finished. Only the done
// and fail tools settle it; anything else keeps browsing.
func (s *session) selfReflect(ctx context.Context, wire []llm.WireMessage, reply llm.WireMessage) error {
	prompt, err := renderBrowserTemplate("self_reflection_message.md.tmpl", nil)
	if err != nil {
		return err
	}

	msgs := make([]llm.WireMessage, 0, len(wire)+2)
	msgs = append(msgs, wire...)
	msgs = append(msgs, reply, llm.WireMessage{Role: "user", Content: &prompt})

	completion, err := s.client.CreateChatCompletion(ctx, llm.CompletionRequest{
		Model:    s.modelName,
		Messages: msgs,
		Tools:    reflectionTools(),
	})
	if err != nil {
		return fmt.Errorf("browsing self-reflection: %w", err)
	}
	if len(completion.Choices) == 0 {
		return errors.New("empty self-reflection completion")
	}

	for _, call := range completion.Choices[0].Message.ToolCallList() {
		switch call.Function.Name {
		case "done":
			s.active = false
		case "fail":
			var args struct {
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("parsing fail arguments: %w", err)
			}
			s.failure = args.Reason
			s.active = false
		default:
			slog.Warn("Unexpected tool on browsing self-reflection", "tool", call.Function.Name)
		}
	}
	return nil
}

func (s *session) pushToolOutput(toolCallID, text string) {
	content := "```\n" + text + "\n```"
	id := toolCallID
	s.messages = append(s.messages, llm.WireMessage{
		Role:       "tool",
		Content:    &content,
		ToolCallID: &id,
	})
}

func browsingTools() []llm.Tool {
	return []llm.Tool{
		llm.FunctionTool("scroll_down", "Scroll one screen down", nil),
		llm.FunctionTool("goto", "Navigate to a URL",
			json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to navigate to"}},"required":["url"]}`)),
		llm.FunctionTool("click", "Click the element with the given id",
			json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer","description":"Viewport element id"}},"required":["id"]}`)),
		llm.FunctionTool("send_keys", "Type text into the element with the given id",
			json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer","description":"Viewport element id"},"text":{"type":"string","description":"Text to type"}},"required":["id","text"]}`)),
		llm.FunctionTool("append_notebook", "Append a finding to the notebook",
			json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"Text to record"}},"required":["text"]}`)),
		llm.FunctionTool("clear_notebook", "Discard the notebook contents", nil),
	}
}

func reflectionTools() []llm.Tool {
	return []llm.Tool{
		llm.FunctionTool("done", "The objective has been achieved", nil),
		llm.FunctionTool("fail", "The objective cannot be achieved",
			json.RawMessage(`{"type":"object","properties":{"reason":{"type":"string","description":"Why the objective cannot be achieved"}},"required":["reason"]}`)),
	}
}

func renderBrowserTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
