// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/llm"
	"github.com/demeterhq/demeter/pkg/resilience"
)

// knownLanguages maps lowercase mentions in the query to target
// language names, ordered for deterministic detection.
var knownLanguages = []string{"hindi", "punjabi", "tamil", "telugu", "bengali", "marathi", "spanish", "french", "english"}

// Translation exposes llm-backed translation as the translation
// capability.
type Translation struct {
	provider llm.Provider
	model    string
	retry    resilience.RetryConfig
}

// NewTranslation creates the translation provider.
func NewTranslation(provider llm.Provider, model string) *Translation {
	return &Translation{
		provider: provider,
		model:    model,
		retry:    resilience.DefaultRetryConfig().WithMaxAttempts(2),
	}
}

// Descriptor returns the registry entry for this provider.
func (p *Translation) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "translation",
		Invoke:      capability.InvokerFunc(p.invoke),
		Description: "Translates agricultural advice between languages",
		Category:    capability.CategoryTranslation,
		Keywords:    []string{"translate", "hindi", "language"},
	}
}

func (p *Translation) invoke(ctx context.Context, args map[string]any) capability.Result {
	text := stringArg(args, "text")
	query := stringArg(args, "query")
	if text == "" {
		text = query
	}
	if text == "" {
		return capability.Fail("missing text to translate")
	}

	target := stringArg(args, "target_language")
	if target == "" {
		target = detectLanguage(query)
	}
	if target == "" {
		target = "English"
	}

	req := llm.ChatRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf("Translate the user's text to %s. Reply with the translation only.", target)},
			{Role: llm.RoleUser, Content: text},
		},
	}

	value, err := p.retry.DoWithResult(ctx, func() (interface{}, error) {
		return p.provider.Chat(ctx, req)
	})
	if err != nil {
		return capability.Fail(err.Error())
	}

	resp := value.(*llm.ChatResponse)
	if resp.Content == "" {
		return capability.Fail("model returned an empty translation")
	}
	return capability.Ok(map[string]any{
		"translation":     resp.Content,
		"target_language": target,
	})
}

func detectLanguage(query string) string {
	lowered := strings.ToLower(query)
	for _, lang := range knownLanguages {
		if strings.Contains(lowered, lang) {
			return strings.ToUpper(lang[:1]) + lang[1:]
		}
	}
	return ""
}
