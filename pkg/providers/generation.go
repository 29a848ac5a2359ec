// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"fmt"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/llm"
	"github.com/demeterhq/demeter/pkg/resilience"
)

const generationSystemPrompt = "You are an agronomy assistant. Answer farming questions " +
	"concisely and practically. When context documents are provided, ground the answer in them."

// Generation exposes free-text answering as the llm_generation
// capability, the universal fallback of the router.
type Generation struct {
	provider llm.Provider
	model    string
	retry    resilience.RetryConfig
}

// NewGeneration creates the generation provider.
func NewGeneration(provider llm.Provider, model string) *Generation {
	return &Generation{
		provider: provider,
		model:    model,
		retry:    resilience.DefaultRetryConfig().WithMaxAttempts(2),
	}
}

// Descriptor returns the registry entry for this provider.
func (p *Generation) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "llm_generation",
		Invoke:      capability.InvokerFunc(p.invoke),
		Description: "Generates a free-text answer, optionally grounded in retrieved context",
		Category:    capability.CategoryGeneration,
		Keywords:    []string{"explain", "describe", "how", "why", "benefits"},
	}
}

func (p *Generation) invoke(ctx context.Context, args map[string]any) capability.Result {
	query := stringArg(args, "query")
	if query == "" {
		return capability.Fail("missing query argument")
	}

	docCtx := stringArg(args, "context")
	user := query
	if docCtx != "" {
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", docCtx, query)
	}
	if hist := stringArg(args, "history"); hist != "" {
		user = fmt.Sprintf("Conversation so far:\n%s\n\n%s", hist, user)
	}

	req := llm.ChatRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: generationSystemPrompt},
			{Role: llm.RoleUser, Content: user},
		},
	}

	// When the model is unreachable after retries, degrade to the
	// retrieved context if one was supplied; otherwise surface the
	// provider error.
	value, err := resilience.WithFallback(ctx, func() (interface{}, error) {
		return p.retry.DoWithResult(ctx, func() (interface{}, error) {
			return p.provider.Chat(ctx, req)
		})
	}, &resilience.ChainedFallback{Fallbacks: []resilience.FallbackStrategy{
		resilience.FallbackFunc(func(_ context.Context, primaryErr error) (interface{}, error) {
			if docCtx == "" {
				return nil, primaryErr
			}
			return &llm.ChatResponse{
				Content: fmt.Sprintf("The language model is currently unavailable. Relevant excerpts from the knowledge base:\n%s", docCtx),
			}, nil
		}),
		&resilience.ErrorFallback{Message: "generation backend unavailable"},
	}})
	if err != nil {
		return capability.Fail(err.Error())
	}

	resp := value.(*llm.ChatResponse)
	if resp.Content == "" {
		return capability.Fail("model returned an empty response")
	}
	return capability.Ok(resp.Content)
}
