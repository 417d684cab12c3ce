// Package codeblocks extracts actionable code blocks from markdown. A fenced
// block becomes actionable when the blockquote immediately preceding it is
// either "> Execute" or "> Save: `filename`".
package codeblocks

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Language classifies a code block for execution.
type Language int

// Languages the interpreter distinguishes. Unknown is an unlabeled fence;
// Other is a label we recognize but cannot run.
const (
	LanguageUnknown Language = iota
	LanguageShell
	LanguageMarkdown
	LanguagePython
	LanguageOther
)

// LanguageFrom maps a fence label to a Language.
func LanguageFrom(label string) Language {
	switch strings.ToLower(label) {
	case "sh", "shell":
		return LanguageShell
	case "markdown", "md":
		return LanguageMarkdown
	case "python":
		return LanguagePython
	case "":
		return LanguageUnknown
	default:
		return LanguageOther
	}
}

func (l Language) String() string {
	switch l {
	case LanguageShell:
		return "shell"
	case LanguageMarkdown:
		return "markdown"
	case LanguagePython:
		return "python"
	case LanguageOther:
		return "other"
	default:
		return "unknown"
	}
}

// Action is what the author asked to do with the block.
type Action int

// Actions.
const (
	ActionDoNothing Action = iota
	ActionExecute
	ActionSave
)

// Block is one actionable code block.
type Block struct {
	Code     string
	Language Language
	// RawLanguage is the fence label as written, used in error messages.
	RawLanguage string
	Filename    string
	Action      Action
}

// Parse walks the document's top-level nodes. A qualifying blockquote arms
// the pending action; the next fenced code block consumes it. Anything else
// between them is ignored, and unarmed code blocks are skipped.
func Parse(source string) []Block {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []Block
	var pending Block

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Blockquote:
			if action, filename, ok := parseDirective(n, src); ok {
				pending = Block{Action: action, Filename: filename}
			}
		case *ast.FencedCodeBlock:
			if pending.Action == ActionDoNothing {
				continue
			}
			pending.RawLanguage = string(n.Language(src))
			pending.Language = LanguageFrom(pending.RawLanguage)
			pending.Code = nodeLines(n, src)
			blocks = append(blocks, pending)
			pending = Block{}
		case *ast.CodeBlock:
			if pending.Action == ActionDoNothing {
				continue
			}
			pending.Language = LanguageUnknown
			pending.Code = nodeLines(n, src)
			blocks = append(blocks, pending)
			pending = Block{}
		}
	}
	return blocks
}

// parseDirective recognizes "> Execute" and "> Save: `filename`".
func parseDirective(quote *ast.Blockquote, src []byte) (Action, string, bool) {
	if quote.ChildCount() != 1 {
		return ActionDoNothing, "", false
	}
	paragraph, ok := quote.FirstChild().(*ast.Paragraph)
	if !ok {
		return ActionDoNothing, "", false
	}

	switch paragraph.ChildCount() {
	case 1:
		textNode, ok := paragraph.FirstChild().(*ast.Text)
		if !ok {
			return ActionDoNothing, "", false
		}
		if strings.TrimSpace(strings.ToLower(string(textNode.Segment.Value(src)))) != "execute" {
			return ActionDoNothing, "", false
		}
		return ActionExecute, "", true
	case 2:
		textNode, ok := paragraph.FirstChild().(*ast.Text)
		if !ok {
			return ActionDoNothing, "", false
		}
		if strings.TrimSpace(strings.ToLower(string(textNode.Segment.Value(src)))) != "save:" {
			return ActionDoNothing, "", false
		}
		codeSpan, ok := paragraph.LastChild().(*ast.CodeSpan)
		if !ok {
			return ActionDoNothing, "", false
		}
		return ActionSave, inlineText(codeSpan, src), true
	default:
		return ActionDoNothing, "", false
	}
}

func inlineText(node ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
		}
	}
	return buf.String()
}

func nodeLines(node interface{ Lines() *text.Segments }, src []byte) string {
	var buf bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}
