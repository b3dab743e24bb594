package llm

import (
	"strings"

	"velvet/velvet/utils/logging"

	"github.com/magiconair/properties"
	"go.uber.org/zap"
)

const (
	defaultSystemPrompt = "You are Velvet, an assistant for economic and financial questions about Peru. " +
		"Answer in the language of the question, be precise with figures and say when you are unsure."
	defaultContextTemplate = "Use the following context when it is relevant to the question.\n\nContext:\n${context}"
)

type Prompts struct {
	SystemPrompt    string
	ContextTemplate string
}

// LoadPrompts reads prompts from a .properties file. An empty path or a
// broken file yields the built-in prompts.
func LoadPrompts(path string) Prompts {
	p := Prompts{SystemPrompt: defaultSystemPrompt, ContextTemplate: defaultContextTemplate}
	if path == "" {
		return p
	}
	// ${context} is filled per request, not by the properties expander
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadFile(path)
	if err != nil {
		logging.AppLogger.Error("Prompts load error", zap.String("path", path), zap.Error(err))
		return p
	}
	p.SystemPrompt = props.GetString("system_prompt", p.SystemPrompt)
	p.ContextTemplate = props.GetString("context_template", p.ContextTemplate)
	return p
}

// BuildMessages lays out system prompt, optional context, history and the
// current user message in chat-completions order.
func (p Prompts) BuildMessages(req GenerateRequest) []Message {
	msgs := make([]Message, 0, len(req.History)+3)
	msgs = append(msgs, Message{Role: "system", Content: p.SystemPrompt})
	if strings.TrimSpace(req.Context) != "" {
		msgs = append(msgs, Message{
			Role:    "system",
			Content: strings.ReplaceAll(p.ContextTemplate, "${context}", req.Context),
		})
	}
	for _, h := range req.History {
		if h.Content == "" {
			continue
		}
		msgs = append(msgs, h)
	}
	return append(msgs, Message{Role: "user", Content: req.Message})
}
