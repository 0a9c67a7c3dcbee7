package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"ragdoll/internal/ai"
	"ragdoll/internal/index"
)

const promptTemplate = `You are a support assistant guiding users through a web application using the PDF document provided.
If you are uncertain, say that you do not know. Be concise and factual, and base your answer on the document.

Question: {{.user_query}}
Context: {{.document_context}}
Answer:
`

// contextSeparator sits between segment texts in the rendered prompt.
const contextSeparator = "\n\n"

// Answerer renders the grounding prompt and submits it to the generative model.
type Answerer struct {
	generator    ai.Generator
	template     prompts.PromptTemplate
	noDocMessage string
	timeout      time.Duration
}

func NewAnswerer(generator ai.Generator, noDocMessage string, timeout time.Duration) *Answerer {
	return &Answerer{
		generator:    generator,
		template:     prompts.NewPromptTemplate(promptTemplate, []string{"user_query", "document_context"}),
		noDocMessage: noDocMessage,
		timeout:      timeout,
	}
}

// NoDocumentMessage is returned instead of a model answer when nothing was retrieved.
func (a *Answerer) NoDocumentMessage() string {
	return a.noDocMessage
}

// RenderPrompt fills the template with the query and the hit texts in retrieval order.
func (a *Answerer) RenderPrompt(query string, hits []index.Hit) (string, error) {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Segment.Content
	}
	out, err := a.template.Format(map[string]any{
		"user_query":       query,
		"document_context": strings.Join(parts, contextSeparator),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt failed: %w", err)
	}
	return out, nil
}

// Answer returns the model output verbatim. With no hits the model is not called.
func (a *Answerer) Answer(ctx context.Context, query string, hits []index.Hit) (string, error) {
	if len(hits) == 0 {
		return a.noDocMessage, nil
	}

	prompt, err := a.RenderPrompt(query, hits)
	if err != nil {
		return "", err
	}

	genCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.generator.Generate(genCtx, prompt)
	if err != nil {
		return "", providerError(genCtx, "generate answer", err)
	}
	return out, nil
}
