package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/pkg/llm"
)

// DefaultSystemPrompt is used when no prompt template is configured.
// {{context}} receives the numbered evidence block, {{question}} the
// user question.
const DefaultSystemPrompt = `You are a precise assistant answering from a knowledge base.
Answer the question using ONLY the evidence below. Reference evidence by
its [number]. If the evidence does not answer the question, say so.

Evidence:
{{context}}

Question: {{question}}`

// GeneratorConfig configures answer generation.
type GeneratorConfig struct {
	// SystemPrompt is the prompt template.
	SystemPrompt string
}

// Generator produces an optional natural-language answer grounded in
// the assembled citations.
type Generator struct {
	chatProvider llm.ChatProvider
	config       *GeneratorConfig
}

// NewGenerator creates a Generator.
func NewGenerator(chatProvider llm.ChatProvider, config *GeneratorConfig) *Generator {
	if config == nil {
		config = &GeneratorConfig{}
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Generator{
		chatProvider: chatProvider,
		config:       config,
	}
}

// GenerateAnswer renders the citations into an evidence block and asks
// the chat provider for an answer.
func (g *Generator) GenerateAnswer(ctx context.Context, question string, citations []model.Citation) (string, error) {
	if g.chatProvider == nil {
		return "", model.NewValidationError("with_answer", "answer generation is disabled")
	}
	if len(citations) == 0 {
		return "I couldn't find any relevant information in the knowledge base.", nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("context cancelled before generation: %w", ctx.Err())
	}

	prompt := strings.ReplaceAll(g.config.SystemPrompt, "{{context}}", evidenceBlock(citations))
	prompt = strings.ReplaceAll(prompt, "{{question}}", question)

	answer, err := g.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		logger.Errorw("answer generation failed", "error", err.Error())
		return "", fmt.Errorf("generate answer: %w", err)
	}

	logger.Infow("answer generated", "length", len(answer), "citations", len(citations))
	return answer, nil
}

// evidenceBlock renders citations as "[n] filename (locator): excerpt"
// lines, matching the numbers returned to the caller.
func evidenceBlock(citations []model.Citation) string {
	var sb strings.Builder
	for _, c := range citations {
		sb.WriteString(fmt.Sprintf("[%d] %s", c.Number, c.Filename))
		if c.Locator != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", c.Locator))
		}
		sb.WriteString(": ")
		sb.WriteString(c.Excerpt)
		sb.WriteString("\n")
	}
	return sb.String()
}
